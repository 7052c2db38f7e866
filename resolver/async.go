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

package resolver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/internal"
)

// ErrInitialResolutionFailed indicates the warm-up resolution produced no
// endpoints and fail-fast is enabled.
var ErrInitialResolutionFailed = errors.New("initial endpoint resolution failed")

const (
	defaultRefreshInterval = 5 * time.Minute
	defaultWarmUpTimeout   = 5 * time.Second
)

// AsyncResolver caches a delegate resolver's endpoints and refreshes them
// on a background schedule. Construction performs one synchronous warm-up
// resolution; after that, Endpoints never blocks. A failed or empty
// refresh never overwrites a previously successful value.
type AsyncResolver struct {
	name     string
	delegate Resolver
	interval time.Duration
	warmUp   time.Duration
	failFast bool
	clock    internal.Clock
	logger   *zap.Logger

	value         atomic.Pointer[[]endpoint.Endpoint]
	lastRefreshAt atomic.Int64
	refreshing    atomic.Bool

	closeOnce  sync.Once
	done       chan struct{}
	doneSignal chan struct{}
}

// AsyncOption customizes an AsyncResolver.
type AsyncOption func(*AsyncResolver)

// WithRefreshInterval sets the background refresh period. Default 5m.
func WithRefreshInterval(interval time.Duration) AsyncOption {
	return func(r *AsyncResolver) {
		r.interval = interval
	}
}

// WithWarmUpTimeout bounds the synchronous warm-up resolution. Default 5s.
func WithWarmUpTimeout(timeout time.Duration) AsyncOption {
	return func(r *AsyncResolver) {
		r.warmUp = timeout
	}
}

// WithFailFast makes construction fail with ErrInitialResolutionFailed
// when the warm-up resolution is empty.
func WithFailFast(failFast bool) AsyncOption {
	return func(r *AsyncResolver) {
		r.failFast = failFast
	}
}

// WithAsyncClock substitutes the clock driving the refresh schedule.
func WithAsyncClock(clock internal.Clock) AsyncOption {
	return func(r *AsyncResolver) {
		r.clock = clock
	}
}

// WithAsyncLogger sets the logger. The default discards everything.
func WithAsyncLogger(logger *zap.Logger) AsyncOption {
	return func(r *AsyncResolver) {
		r.logger = logger
	}
}

// NewAsyncResolver wraps delegate with warm-up, a cached value, and
// periodic background refresh. Shutdown stops the schedule and shuts the
// delegate down if it is Closable.
func NewAsyncResolver(name string, delegate Resolver, options ...AsyncOption) (*AsyncResolver, error) {
	res := &AsyncResolver{
		name:       name,
		delegate:   delegate,
		interval:   defaultRefreshInterval,
		warmUp:     defaultWarmUpTimeout,
		clock:      internal.NewRealClock(),
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
		doneSignal: make(chan struct{}),
	}
	for _, opt := range options {
		opt(res)
	}

	initial := res.warmUpResolve()
	if len(initial) == 0 {
		if res.failFast {
			return nil, fmt.Errorf("%w: resolver %s", ErrInitialResolutionFailed, name)
		}
		res.logger.Warn("warm-up resolution returned no endpoints",
			zap.String("resolver", name))
	}
	res.value.Store(&initial)
	res.lastRefreshAt.Store(res.clock.Now().UnixNano())

	go res.run()
	return res, nil
}

// warmUpResolve performs the single synchronous warm-up call, bounded by
// the warm-up timeout. The delegate call itself cannot be cancelled; on
// timeout its eventual result is discarded.
func (r *AsyncResolver) warmUpResolve() []endpoint.Endpoint {
	resultCh := make(chan []endpoint.Endpoint, 1)
	go func() {
		resultCh <- r.delegate.Endpoints()
	}()
	timer := r.clock.NewTimer(r.warmUp)
	defer timer.Stop()
	select {
	case result := <-resultCh:
		return result
	case <-timer.Chan():
		r.logger.Warn("warm-up resolution timed out",
			zap.String("resolver", r.name), zap.Duration("timeout", r.warmUp))
		return nil
	}
}

func (r *AsyncResolver) run() {
	defer close(r.doneSignal)
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.Chan():
			r.refresh()
		}
	}
}

func (r *AsyncResolver) refresh() {
	r.refreshing.Store(true)
	defer r.refreshing.Store(false)

	latest := r.delegate.Endpoints()
	if len(latest) == 0 {
		r.logger.Warn("background refresh returned no endpoints, keeping previous value",
			zap.String("resolver", r.name))
		return
	}
	if previous := r.value.Load(); previous != nil && !endpoint.Identical(*previous, latest) {
		r.logger.Info("endpoint list changed",
			zap.String("resolver", r.name), zap.Int("count", len(latest)))
	}
	r.value.Store(&latest)
	r.lastRefreshAt.Store(r.clock.Now().UnixNano())
}

func (r *AsyncResolver) Region() string {
	return r.delegate.Region()
}

// Endpoints returns the cached endpoint list without blocking.
func (r *AsyncResolver) Endpoints() []endpoint.Endpoint {
	return *r.value.Load()
}

// LastRefreshAt returns the time of the last successful resolution.
func (r *AsyncResolver) LastRefreshAt() time.Time {
	return time.Unix(0, r.lastRefreshAt.Load())
}

// Shutdown stops the refresh schedule and releases the delegate.
func (r *AsyncResolver) Shutdown() {
	r.closeOnce.Do(func() {
		close(r.done)
		<-r.doneSignal
		if closable, ok := r.delegate.(Closable); ok {
			closable.Shutdown()
		}
	})
}
