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

package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/internal"
)

// SessionedClient enforces a full reconnect at a regular, jittered
// interval (a session), preventing a client from sticking to one server
// forever. As the cluster topology changes, the forced reconnection keeps
// load evenly distributed even when nothing fails.
type SessionedClient struct {
	decorator

	name            string
	factory         ClientFactory
	sessionDuration time.Duration
	clock           internal.Clock
	logger          *zap.Logger

	mu              sync.Mutex
	rnd             *rand.Rand
	client          Client
	currentSession  time.Duration
	lastReconnectAt time.Time
}

// SessionedOption customizes a sessioned client.
type SessionedOption func(*SessionedClient)

// WithSessionedClock substitutes the clock used for session expiry.
func WithSessionedClock(clock internal.Clock) SessionedOption {
	return func(c *SessionedClient) {
		c.clock = clock
	}
}

// WithSessionedLogger sets the logger. The default discards everything.
func WithSessionedLogger(logger *zap.Logger) SessionedOption {
	return func(c *SessionedClient) {
		c.logger = logger
	}
}

// NewSessionedClient creates a client that rebuilds its delegate through
// factory whenever the current session expires. Each session's duration
// is drawn uniformly from [d/2, 3d/2), where d is sessionDuration, so a
// fleet of clients does not reconnect in lockstep.
func NewSessionedClient(name string, factory ClientFactory, sessionDuration time.Duration, options ...SessionedOption) *SessionedClient {
	client := &SessionedClient{
		name:            name,
		factory:         factory,
		sessionDuration: sessionDuration,
		clock:           internal.NewRealClock(),
		logger:          zap.NewNop(),
		rnd:             internal.NewRand(),
	}
	client.decorator = decorator{exec: client}
	for _, opt := range options {
		opt(client)
	}
	client.currentSession = client.randomizeSessionDuration()
	client.lastReconnectAt = client.clock.Now()
	return client
}

func (c *SessionedClient) execute(ctx context.Context, req request) (*Response, error) {
	c.mu.Lock()
	now := c.clock.Now()
	var expired Client
	if now.Sub(c.lastReconnectAt) >= c.currentSession {
		c.logger.Debug("ending a session and starting anew", zap.String("client", c.name))
		c.lastReconnectAt = now
		c.currentSession = c.randomizeSessionDuration()
		expired = c.client
		c.client = nil
	}
	if c.client == nil {
		c.client = c.factory.NewClient()
	}
	current := c.client
	c.mu.Unlock()

	shutdownClient(expired)
	return req.do(ctx, current)
}

// Shutdown releases the current delegate.
func (c *SessionedClient) Shutdown() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	shutdownClient(client)
}

// CurrentSessionDuration returns the jittered duration of the session in
// progress.
func (c *SessionedClient) CurrentSessionDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSession
}

// randomizeSessionDuration draws d + d*(U[0,1) - 0.5). Callers hold mu or
// have exclusive access during construction.
func (c *SessionedClient) randomizeSessionDuration() time.Duration {
	delta := time.Duration(float64(c.sessionDuration) * (c.rnd.Float64() - 0.5))
	return c.sessionDuration + delta
}
