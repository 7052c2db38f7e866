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

// Package clocktest exists to allow interoperability between our Clock
// interface and the clockwork interfaces. Compatibility between Go
// interfaces is shallow: function signatures containing other interfaces
// within an interface are compared by their exact (nominal) type. So for
// the Clock methods returning Timer or Ticker, we wrap the clockwork
// version into functions returning ours.
package clocktest

import (
	"context"
	"time"

	"github.com/beaconlabs/beacon/internal"
	"github.com/jonboulle/clockwork"
)

// FakeClock provides an interface for a clock which can be manually
// advanced through time. This adapts the *[clockwork.FakeClock] type to
// our internal.Clock interface.
type FakeClock interface {
	internal.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, waiters int) error
}

// NewFakeClock creates a new FakeClock using clockwork.
func NewFakeClock() FakeClock {
	return fakeClock{clockwork.NewFakeClock()}
}

type fakeClock struct {
	*clockwork.FakeClock
}

var _ FakeClock = fakeClock{}

// NewTicker re-boxes the clockwork.Ticker returned by
// clockwork.Clock.NewTicker as an internal.Ticker. See the package comment
// for why this is necessary.
func (f fakeClock) NewTicker(d time.Duration) internal.Ticker {
	return f.FakeClock.NewTicker(d)
}

// NewTimer re-boxes the clockwork.Timer returned by
// clockwork.Clock.NewTimer as an internal.Timer.
func (f fakeClock) NewTimer(d time.Duration) internal.Timer {
	timer := f.FakeClock.NewTimer(d)
	if d == 0 {
		// Reproduce the pre-1.23 timer behavior, which clockwork still
		// implements: https://github.com/jonboulle/clockwork/issues/98
		if !timer.Stop() {
			<-timer.Chan()
		}
	}
	return timer
}
