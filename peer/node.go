// Copyright 2025 Beacon Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package peer manages the set of fellow servers this node replicates
// registry operations to. The membership is recomputed periodically from
// configuration and diff-applied, so a transient resolution blip never
// tears down a still-valid peer.
package peer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/registry"
	"github.com/beaconlabs/beacon/transport"
)

// Node is one replication target. Replication requests are throttled by a
// token bucket so a flapping registry cannot flood a peer.
type Node struct {
	serviceURL string
	client     transport.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NodeOption customizes a Node.
type NodeOption func(*Node)

// WithReplicationRate throttles replication requests to the peer, in
// requests per second. Zero leaves the node unthrottled.
func WithReplicationRate(perSecond float64) NodeOption {
	return func(n *Node) {
		if perSecond > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

// WithNodeLogger sets the logger. The default discards everything.
func WithNodeLogger(logger *zap.Logger) NodeOption {
	return func(n *Node) {
		n.logger = logger
	}
}

// NewNode creates a replication node for the given peer service URL,
// building its client with factory.
func NewNode(serviceURL string, factory transport.Factory, options ...NodeOption) (*Node, error) {
	target, err := endpoint.New(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("peer node %s: %w", serviceURL, err)
	}
	node := &Node{
		serviceURL: serviceURL,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     zap.NewNop(),
	}
	for _, opt := range options {
		opt(node)
	}
	node.client = factory.NewClient(target)
	return node, nil
}

// ServiceURL returns the peer's service URL.
func (n *Node) ServiceURL() string {
	return n.serviceURL
}

// Register replicates a registration to the peer.
func (n *Node) Register(ctx context.Context, info *registry.InstanceInfo) (*transport.Response, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return n.client.Register(ctx, info)
}

// Cancel replicates a cancellation to the peer.
func (n *Node) Cancel(ctx context.Context, appName, id string) (*transport.Response, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return n.client.Cancel(ctx, appName, id)
}

// Heartbeat replicates a heartbeat to the peer. A 404 response means the
// peer does not know the instance; the caller reacts by replicating a
// fresh registration.
func (n *Node) Heartbeat(ctx context.Context, appName, id string) (*transport.Response, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := n.client.SendHeartbeat(ctx, appName, id)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		n.logger.Info("peer does not know the instance",
			zap.String("peer", n.serviceURL),
			zap.String("app", appName),
			zap.String("instance", id))
	}
	return resp, nil
}

// StatusUpdate replicates a status override to the peer.
func (n *Node) StatusUpdate(ctx context.Context, appName, id string, status registry.Status) (*transport.Response, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return n.client.StatusUpdate(ctx, appName, id, status)
}

// Shutdown releases the node's client.
func (n *Node) Shutdown() {
	n.client.Shutdown()
}
