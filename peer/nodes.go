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

package peer

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beaconlabs/beacon/internal"
)

const defaultUpdateInterval = 10 * time.Minute

// URLSource produces the configured peer service URLs for the local
// zone. The local node's own URL may be present; Nodes filters it out.
type URLSource func() []string

// NodeFactory constructs a replication node for a peer service URL.
type NodeFactory func(serviceURL string) (*Node, error)

// Nodes maintains the live peer node set. A periodic reconciliation
// recomputes the desired URL list and diff-applies it: stale nodes are
// shut down, new ones constructed, unchanged ones left untouched.
type Nodes struct {
	source   URLSource
	factory  NodeFactory
	interval time.Duration
	clock    internal.Clock
	logger   *zap.Logger

	selfHostName string
	selfIPAddr   string
	matchByIP    bool

	mu    sync.Mutex
	nodes []*Node
	urls  map[string]struct{}

	startOnce  sync.Once
	closeOnce  sync.Once
	done       chan struct{}
	doneSignal chan struct{}
}

// NodesOption customizes the peer node set.
type NodesOption func(*Nodes)

// WithUpdateInterval sets the reconciliation period. Default 10m.
func WithUpdateInterval(interval time.Duration) NodesOption {
	return func(n *Nodes) {
		n.interval = interval
	}
}

// WithSelf identifies the local node so its own URL is never a peer. The
// URL host is matched against hostName, or against ipAddr when matchByIP
// is set.
func WithSelf(hostName, ipAddr string, matchByIP bool) NodesOption {
	return func(n *Nodes) {
		n.selfHostName = hostName
		n.selfIPAddr = ipAddr
		n.matchByIP = matchByIP
	}
}

// WithNodesClock substitutes the clock driving reconciliation.
func WithNodesClock(clock internal.Clock) NodesOption {
	return func(n *Nodes) {
		n.clock = clock
	}
}

// WithNodesLogger sets the logger. The default discards everything.
func WithNodesLogger(logger *zap.Logger) NodesOption {
	return func(n *Nodes) {
		n.logger = logger
	}
}

// NewNodes creates a peer node set over the given URL source and node
// factory. Call Start to run the first reconciliation and begin the
// schedule.
func NewNodes(source URLSource, factory NodeFactory, options ...NodesOption) *Nodes {
	nodes := &Nodes{
		source:     source,
		factory:    factory,
		interval:   defaultUpdateInterval,
		clock:      internal.NewRealClock(),
		logger:     zap.NewNop(),
		urls:       map[string]struct{}{},
		done:       make(chan struct{}),
		doneSignal: make(chan struct{}),
	}
	for _, opt := range options {
		opt(nodes)
	}
	return nodes
}

// Start runs one immediate reconciliation and schedules the rest.
func (n *Nodes) Start() {
	n.startOnce.Do(func() {
		n.reconcile()
		for _, node := range n.Nodes() {
			n.logger.Info("replica node", zap.String("url", node.ServiceURL()))
		}
		go n.run()
	})
}

func (n *Nodes) run() {
	defer close(n.doneSignal)
	ticker := n.clock.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.done:
			return
		case <-ticker.Chan():
			n.reconcile()
		}
	}
}

// reconcile recomputes the desired peer URL list and applies the
// difference. An empty desired list is treated as a resolution fault and
// leaves the current set alone.
func (n *Nodes) reconcile() {
	desired := n.resolvePeerURLs()
	if len(desired) == 0 {
		n.logger.Warn("replica list is empty, keeping current peer set")
		return
	}

	desiredSet := make(map[string]struct{}, len(desired))
	for _, serviceURL := range desired {
		desiredSet[serviceURL] = struct{}{}
	}

	n.mu.Lock()
	toShutdown := make(map[string]struct{})
	for serviceURL := range n.urls {
		if _, keep := desiredSet[serviceURL]; !keep {
			toShutdown[serviceURL] = struct{}{}
		}
	}
	var toAdd []string
	for _, serviceURL := range desired {
		if _, have := n.urls[serviceURL]; !have {
			toAdd = append(toAdd, serviceURL)
		}
	}
	if len(toShutdown) == 0 && len(toAdd) == 0 {
		n.mu.Unlock()
		return
	}

	var removed []*Node
	newList := make([]*Node, 0, len(n.nodes)+len(toAdd))
	for _, node := range n.nodes {
		if _, gone := toShutdown[node.ServiceURL()]; gone {
			removed = append(removed, node)
		} else {
			newList = append(newList, node)
		}
	}
	for _, serviceURL := range toAdd {
		node, err := n.factory(serviceURL)
		if err != nil {
			n.logger.Error("cannot create peer node, skipping",
				zap.String("url", serviceURL), zap.Error(err))
			continue
		}
		newList = append(newList, node)
	}

	newURLs := make(map[string]struct{}, len(newList))
	for _, node := range newList {
		newURLs[node.ServiceURL()] = struct{}{}
	}
	n.nodes = newList
	n.urls = newURLs
	n.mu.Unlock()

	if len(toShutdown) > 0 {
		n.logger.Info("removing no longer available peer nodes",
			zap.Int("count", len(removed)))
		for _, node := range removed {
			node.Shutdown()
		}
	}
	if len(toAdd) > 0 {
		n.logger.Info("added new peer nodes", zap.Strings("urls", toAdd))
	}
}

// resolvePeerURLs builds the desired URL list with the local node's own
// URL filtered out.
func (n *Nodes) resolvePeerURLs() []string {
	var peers []string
	for _, serviceURL := range n.source() {
		if n.isSelf(serviceURL) {
			continue
		}
		peers = append(peers, serviceURL)
	}
	return peers
}

func (n *Nodes) isSelf(serviceURL string) bool {
	parsed, err := url.Parse(serviceURL)
	if err != nil {
		n.logger.Warn("cannot parse peer service URL", zap.String("url", serviceURL), zap.Error(err))
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	comparator := n.selfHostName
	if n.matchByIP {
		comparator = n.selfIPAddr
	}
	return strings.EqualFold(host, comparator)
}

// Nodes returns a snapshot of the current node list.
func (n *Nodes) Nodes() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.nodes...)
}

// URLs returns a snapshot of the current peer URL set.
func (n *Nodes) URLs() map[string]struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	urls := make(map[string]struct{}, len(n.urls))
	for serviceURL := range n.urls {
		urls[serviceURL] = struct{}{}
	}
	return urls
}

// Shutdown stops the schedule, swaps the node list out, and shuts every
// node down.
func (n *Nodes) Shutdown() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.startOnce.Do(func() {
			// Never started: there is no run loop waiting on done.
			close(n.doneSignal)
		})
		<-n.doneSignal

		n.mu.Lock()
		removed := n.nodes
		n.nodes = nil
		n.urls = map[string]struct{}{}
		n.mu.Unlock()

		var group errgroup.Group
		for _, node := range removed {
			group.Go(func() error {
				node.Shutdown()
				return nil
			})
		}
		_ = group.Wait()
	})
}
