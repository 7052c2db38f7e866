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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/resolver"
)

const (
	defaultMaxAttempts               = 3
	defaultQuarantineRefreshFraction = 0.66
)

var (
	// ErrNoReachableServer indicates the candidate list is empty, either
	// because the resolver knows no servers or because the attempt index
	// ran past the remaining candidates.
	ErrNoReachableServer = errors.New("no known reachable server")
	// ErrRetryLimitExceeded indicates every allowed attempt failed.
	ErrRetryLimitExceeded = errors.New("retry limit reached")
)

// RetryableClient retries failed requests on subsequent servers of the
// cluster. Servers that fail are quarantined so later requests skip them;
// the quarantine clears once it covers the configured fraction of the
// candidate list, since at that point starting over is the only option.
// 5xx responses and transport errors retry; what else is acceptable is
// the status evaluator's decision.
type RetryableClient struct {
	decorator

	name        string
	res         resolver.Resolver
	factory     Factory
	evaluator   StatusEvaluator
	maxAttempts int
	fraction    float64
	logger      *zap.Logger

	mu         sync.Mutex
	delegate   Client
	quarantine map[endpoint.Endpoint]struct{}
}

// RetryableOption customizes a retryable client.
type RetryableOption func(*RetryableClient)

// WithMaxAttempts overrides the attempt bound. Default 3.
func WithMaxAttempts(attempts int) RetryableOption {
	return func(c *RetryableClient) {
		c.maxAttempts = attempts
	}
}

// WithQuarantineRefreshFraction overrides the quarantine clear threshold,
// expressed as a fraction of the candidate list size. Default 0.66.
func WithQuarantineRefreshFraction(fraction float64) RetryableOption {
	return func(c *RetryableClient) {
		c.fraction = fraction
	}
}

// WithRetryableLogger sets the logger. The default discards everything.
func WithRetryableLogger(logger *zap.Logger) RetryableOption {
	return func(c *RetryableClient) {
		c.logger = logger
	}
}

// NewRetryableClient creates a retrying client over the resolver's
// candidates, building per-endpoint clients with factory and classifying
// responses with evaluator.
func NewRetryableClient(name string, res resolver.Resolver, factory Factory, evaluator StatusEvaluator, options ...RetryableOption) *RetryableClient {
	client := &RetryableClient{
		name:        name,
		res:         res,
		factory:     factory,
		evaluator:   evaluator,
		maxAttempts: defaultMaxAttempts,
		fraction:    defaultQuarantineRefreshFraction,
		logger:      zap.NewNop(),
		quarantine:  map[endpoint.Endpoint]struct{}{},
	}
	client.decorator = decorator{exec: client}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// NewRetryableFactory builds retryable clients on demand, one per
// session.
func NewRetryableFactory(name string, res resolver.Resolver, factory Factory, evaluator StatusEvaluator, options ...RetryableOption) ClientFactory {
	return retryableFactory{name: name, res: res, factory: factory, evaluator: evaluator, options: options}
}

type retryableFactory struct {
	name      string
	res       resolver.Resolver
	factory   Factory
	evaluator StatusEvaluator
	options   []RetryableOption
}

func (f retryableFactory) NewClient() Client {
	return NewRetryableClient(f.name, f.res, f.factory, f.evaluator, f.options...)
}

func (f retryableFactory) Shutdown() {
	f.factory.Shutdown()
}

func (c *RetryableClient) execute(ctx context.Context, req request) (*Response, error) {
	var candidates []endpoint.Endpoint
	endpointIdx := 0
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		currentClient := c.loadDelegate()
		var currentEndpoint *endpoint.Endpoint

		if currentClient == nil {
			if candidates == nil {
				candidates = c.hostCandidates()
				if len(candidates) == 0 {
					return nil, fmt.Errorf("%w: cluster server list is empty", ErrNoReachableServer)
				}
			}
			if endpointIdx >= len(candidates) {
				return nil, fmt.Errorf("%w: all %d candidates failed", ErrNoReachableServer, len(candidates))
			}
			currentEndpoint = &candidates[endpointIdx]
			endpointIdx++
			currentClient = c.factory.NewClient(*currentEndpoint)
		}

		resp, err := req.do(ctx, currentClient)
		if err == nil {
			if c.evaluator.Accept(resp.StatusCode, req.kind) {
				c.installDelegate(currentClient)
				if attempt > 0 {
					c.logger.Info("request execution succeeded on retry",
						zap.String("client", c.name), zap.Int("retry", attempt))
				}
				return resp, nil
			}
			c.logger.Warn("request execution failure, retrying on another server",
				zap.String("client", c.name),
				zap.Int("statusCode", resp.StatusCode),
				zap.Stringer("kind", req.kind))
			lastErr = fmt.Errorf("%s returned status %d", req.kind, resp.StatusCode)
		} else {
			c.logger.Warn("request execution failed",
				zap.String("client", c.name), zap.Error(err))
			lastErr = err
		}

		// Connection error or a non-accepted status: drop the delegate and
		// quarantine the endpoint we picked in this call.
		if dropped := c.clearDelegate(currentClient); !dropped && currentEndpoint != nil {
			// We built this client ourselves and it never got installed.
			currentClient.Shutdown()
		}
		if currentEndpoint != nil {
			c.addToQuarantine(*currentEndpoint)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetryLimitExceeded, lastErr)
	}
	return nil, ErrRetryLimitExceeded
}

// hostCandidates fetches the resolver's current list, prunes the
// quarantine down to it, and either clears the quarantine (when it covers
// enough of the list) or filters the quarantined servers out.
func (c *RetryableClient) hostCandidates() []endpoint.Endpoint {
	candidates := c.res.Endpoints()

	c.mu.Lock()
	defer c.mu.Unlock()

	for quarantined := range c.quarantine {
		found := false
		for _, candidate := range candidates {
			if candidate == quarantined {
				found = true
				break
			}
		}
		if !found {
			delete(c.quarantine, quarantined)
		}
	}

	if len(c.quarantine) == 0 {
		return candidates
	}
	threshold := float64(len(candidates)) * c.fraction
	if float64(len(c.quarantine)) >= threshold {
		c.logger.Debug("clearing quarantined list",
			zap.String("client", c.name), zap.Int("size", len(c.quarantine)))
		c.quarantine = map[endpoint.Endpoint]struct{}{}
		return candidates
	}

	remaining := make([]endpoint.Endpoint, 0, len(candidates))
	for _, candidate := range candidates {
		if _, bad := c.quarantine[candidate]; !bad {
			remaining = append(remaining, candidate)
		}
	}
	return remaining
}

// Shutdown releases the current delegate.
func (c *RetryableClient) Shutdown() {
	c.mu.Lock()
	delegate := c.delegate
	c.delegate = nil
	c.mu.Unlock()
	shutdownClient(delegate)
}

// QuarantineSize reports the quarantined server count.
func (c *RetryableClient) QuarantineSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quarantine)
}

func (c *RetryableClient) loadDelegate() Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

func (c *RetryableClient) installDelegate(client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = client
}

// clearDelegate drops the delegate if it is the observed client,
// reporting whether the observed client had been the installed delegate.
func (c *RetryableClient) clearDelegate(observed Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delegate == observed {
		c.delegate = nil
		return true
	}
	return false
}

func (c *RetryableClient) addToQuarantine(failed endpoint.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quarantine[failed] = struct{}{}
}
