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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/internal/clocktest"
)

type stubResolver struct {
	region string

	mu        sync.Mutex
	endpoints []endpoint.Endpoint
	calls     int
	shutdowns int
}

func (s *stubResolver) Region() string {
	return s.region
}

func (s *stubResolver) Endpoints() []endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]endpoint.Endpoint(nil), s.endpoints...)
}

func (s *stubResolver) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

func (s *stubResolver) set(endpoints []endpoint.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = endpoints
}

func zoned(host, zone string) endpoint.Endpoint {
	return endpoint.Endpoint{Host: host, Port: 8080, Zone: zone}
}

func TestConfigResolver(t *testing.T) {
	t.Parallel()

	urls := map[string][]string{
		"us-east-1a": {"http://disco-a1:8080/v2/", "http://disco-a2:8080/v2/"},
		"us-east-1c": {"http://disco-c1:8080/v2/", "://bad"},
	}
	res := NewConfigResolver("us-east-1", []string{"us-east-1a", "us-east-1c"}, func(zone string) []string {
		return urls[zone]
	})

	assert.Equal(t, "us-east-1", res.Region())
	endpoints := res.Endpoints()
	require.Len(t, endpoints, 3, "malformed URLs are skipped")
	assert.Equal(t, "disco-a1", endpoints[0].Host)
	assert.Equal(t, "us-east-1a", endpoints[0].Zone)
	assert.Equal(t, "us-east-1", endpoints[0].Region)
	assert.Equal(t, "/v2/", endpoints[0].PathPrefix)
	assert.Equal(t, "us-east-1c", endpoints[2].Zone)
}

func TestZoneAffinityOrdering(t *testing.T) {
	t.Parallel()

	delegate := &stubResolver{region: "us-east-1", endpoints: []endpoint.Endpoint{
		zoned("a", "us-east-1c"),
		zoned("b", "us-east-1a"),
		zoned("c", "us-east-1c"),
		zoned("d", "us-east-1a"),
		zoned("e", "us-east-1d"),
	}}

	affine := NewZoneAffinityResolver(delegate, "us-east-1a", true)
	ordered := affine.Endpoints()
	require.Len(t, ordered, 5)
	assert.Equal(t, "us-east-1a", ordered[0].Zone)
	assert.Equal(t, "us-east-1a", ordered[1].Zone)
	for _, e := range ordered[2:] {
		assert.NotEqual(t, "us-east-1a", e.Zone, "local endpoints all precede non-local ones")
	}
	assert.True(t, endpoint.Identical(delegate.endpoints, ordered))

	antiAffine := NewZoneAffinityResolver(delegate, "us-east-1a", false)
	reversed := antiAffine.Endpoints()
	assert.Equal(t, "us-east-1a", reversed[3].Zone)
	assert.Equal(t, "us-east-1a", reversed[4].Zone)
}

func TestZoneAffinitySingleAndEmpty(t *testing.T) {
	t.Parallel()

	one := []endpoint.Endpoint{zoned("only", "us-east-1a")}
	res := NewZoneAffinityResolver(&stubResolver{endpoints: one}, "us-east-1a", true)
	assert.Equal(t, one, res.Endpoints())

	empty := NewZoneAffinityResolver(&stubResolver{}, "us-east-1a", true)
	assert.Empty(t, empty.Endpoints())
}

func TestZoneAffinityNoLocalZone(t *testing.T) {
	t.Parallel()

	delegate := &stubResolver{endpoints: []endpoint.Endpoint{
		zoned("a", "us-east-1a"),
		zoned("b", "us-east-1c"),
	}}
	res := NewZoneAffinityResolver(delegate, "", true)
	assert.True(t, endpoint.Identical(delegate.endpoints, res.Endpoints()))
}

func TestCompositeResolverPrefersLocal(t *testing.T) {
	t.Parallel()

	local := &stubResolver{endpoints: []endpoint.Endpoint{zoned("local", "z")}}
	remote := &stubResolver{endpoints: []endpoint.Endpoint{zoned("remote", "z")}}
	res := NewCompositeResolver("us-east-1", local, remote)

	assert.Equal(t, "local", res.Endpoints()[0].Host)

	local.set(nil)
	assert.Equal(t, "remote", res.Endpoints()[0].Host)
	assert.Equal(t, "us-east-1", res.Region())
}

func TestAsyncResolverWarmUpAndRefresh(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testClock := clocktest.NewFakeClock()
	delegate := &stubResolver{region: "us-east-1", endpoints: []endpoint.Endpoint{zoned("a", "z1")}}

	res, err := NewAsyncResolver("bootstrap", delegate,
		WithAsyncClock(testClock),
		WithRefreshInterval(30*time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(res.Shutdown)

	assert.Equal(t, "us-east-1", res.Region())
	require.Len(t, res.Endpoints(), 1)
	assert.Equal(t, "a", res.Endpoints()[0].Host)

	// A successful background refresh replaces the cached value.
	delegate.set([]endpoint.Endpoint{zoned("b", "z1"), zoned("c", "z2")})
	require.NoError(t, testClock.BlockUntilContext(ctx, 1))
	testClock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		return len(res.Endpoints()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// An empty refresh keeps the previous value.
	delegate.set(nil)
	require.NoError(t, testClock.BlockUntilContext(ctx, 1))
	testClock.Advance(30 * time.Second)
	assert.Never(t, func() bool {
		return len(res.Endpoints()) != 2
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestAsyncResolverFailFast(t *testing.T) {
	t.Parallel()

	_, err := NewAsyncResolver("bootstrap", &stubResolver{},
		WithAsyncClock(clocktest.NewFakeClock()),
		WithFailFast(true),
	)
	require.ErrorIs(t, err, ErrInitialResolutionFailed)
}

func TestAsyncResolverAcceptsEmptyWarmUpWithoutFailFast(t *testing.T) {
	t.Parallel()

	res, err := NewAsyncResolver("bootstrap", &stubResolver{},
		WithAsyncClock(clocktest.NewFakeClock()),
	)
	require.NoError(t, err)
	t.Cleanup(res.Shutdown)
	assert.Empty(t, res.Endpoints())
}

func TestAsyncResolverShutdownIsIdempotentAndPropagates(t *testing.T) {
	t.Parallel()

	delegate := &stubResolver{endpoints: []endpoint.Endpoint{zoned("a", "z")}}
	res, err := NewAsyncResolver("bootstrap", delegate,
		WithAsyncClock(clocktest.NewFakeClock()),
	)
	require.NoError(t, err)

	res.Shutdown()
	res.Shutdown()

	delegate.mu.Lock()
	defer delegate.mu.Unlock()
	assert.Equal(t, 1, delegate.shutdowns)
}

func TestWrapClosable(t *testing.T) {
	t.Parallel()

	plain := NewCompositeResolver("r", &stubResolver{}, &stubResolver{})
	wrapped := WrapClosable(plain)
	wrapped.Shutdown() // no-op

	delegate := &stubResolver{endpoints: []endpoint.Endpoint{zoned("a", "z")}}
	async, err := NewAsyncResolver("x", delegate, WithAsyncClock(clocktest.NewFakeClock()))
	require.NoError(t, err)
	assert.Same(t, any(async), any(WrapClosable(async)))
	async.Shutdown()
}
