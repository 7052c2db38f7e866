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

package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/beacon/codec"
	"github.com/beaconlabs/beacon/internal/clocktest"
	"github.com/beaconlabs/beacon/registry"
)

type fakeSource struct {
	mu    sync.Mutex
	apps  *registry.Applications
	loads int
	delay time.Duration
}

func (f *fakeSource) snapshot() *registry.Applications {
	f.mu.Lock()
	apps := f.apps
	f.loads++
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return apps
}

func (f *fakeSource) Applications() *registry.Applications { return f.snapshot() }
func (f *fakeSource) ApplicationsForRegions([]string) *registry.Applications {
	return f.snapshot()
}
func (f *fakeSource) Deltas() *registry.Applications                { return f.snapshot() }
func (f *fakeSource) DeltasForRegions([]string) *registry.Applications { return f.snapshot() }

func (f *fakeSource) Application(name string) *registry.Application {
	return f.snapshot().Application(name)
}

func (f *fakeSource) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeSource) replace(apps *registry.Applications) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = apps
}

func snapshotOf(appNames ...string) *registry.Applications {
	apps := registry.NewApplications()
	for _, name := range appNames {
		app := registry.NewApplication(name)
		app.AddInstance(&registry.InstanceInfo{
			ID: name + "-i-1", AppName: name, HostName: name + "-host",
			Port: 8080, Status: registry.StatusUp,
			VIPAddress:       strings.ToLower(name) + ".vip",
			SecureVIPAddress: strings.ToLower(name) + ".svip",
		})
		apps.AddApplication(app)
	}
	return apps
}

func allAppsKey() Key {
	return NewKey(EntityApplication, AllApps, codec.JSON, V2, codec.AcceptFull)
}

func newTestCache(t *testing.T, source RegistrySource, options ...Option) *ResponseCache {
	t.Helper()
	cache := New(source, options...)
	t.Cleanup(cache.Shutdown)
	return cache
}

func TestGetGeneratesAndCaches(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH", "BILLING")}
	cache := newTestCache(t, source, WithClock(clocktest.NewFakeClock()))

	payload := cache.Get(allAppsKey())
	require.NotEmpty(t, payload)
	assert.Contains(t, payload, "SEARCH")
	assert.Contains(t, payload, "BILLING")
	assert.Equal(t, 1, cache.CurrentSize())

	cache.Get(allAppsKey())
	assert.Equal(t, 1, source.loadCount(), "second read is served from cache")
}

func TestGetMissingApplicationIsEmpty(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH")}
	cache := newTestCache(t, source, WithClock(clocktest.NewFakeClock()))

	key := NewKey(EntityApplication, "MISSING", codec.JSON, V2, codec.AcceptFull)
	assert.Empty(t, cache.Get(key))
	assert.Nil(t, cache.GetGzip(key), "empty payloads have no gzipped form")
}

func TestGetGzipRoundTrips(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH")}
	cache := newTestCache(t, source, WithClock(clocktest.NewFakeClock()))

	compressed := cache.GetGzip(allAppsKey())
	require.NotEmpty(t, compressed)

	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, cache.Get(allAppsKey()), string(plain))
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH"), delay: 20 * time.Millisecond}
	cache := newTestCache(t, source, WithClock(clocktest.NewFakeClock()))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get(allAppsKey())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, source.loadCount(), "concurrent misses coalesce into one generation")
}

func TestInvalidationClosure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH")}
	cache := newTestCache(t, source,
		WithClock(clocktest.NewFakeClock()),
		WithReadOnlyCache(false),
	)

	appKey := NewKey(EntityApplication, "SEARCH", codec.JSON, V2, codec.AcceptFull)
	deltaKey := NewKey(EntityApplication, AllAppsDelta, codec.JSON, V2, codec.AcceptFull)
	regionKey := NewKeyWithRegions(EntityApplication, AllApps, codec.JSON, V2, codec.AcceptFull,
		[]string{"us-west-2", "eu-west-1"})
	vipKey := NewKey(EntityVIP, "search.vip", codec.JSON, V2, codec.AcceptFull)

	for _, key := range []Key{allAppsKey(), appKey, deltaKey, regionKey, vipKey} {
		cache.Get(key)
	}
	require.Equal(t, 5, cache.CurrentSize())

	cache.Invalidate("SEARCH", "search.vip", "")
	assert.Zero(t, cache.CurrentSize(),
		"app, aggregates, the region sibling, and the vip view are all evicted")

	// Invalidation is idempotent: already-missing keys are a no-op.
	cache.Invalidate("SEARCH", "search.vip", "")
	assert.Zero(t, cache.CurrentSize())
}

func TestRegionSiblingEvictedThroughRegionlessKey(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH")}
	cache := newTestCache(t, source,
		WithClock(clocktest.NewFakeClock()),
		WithReadOnlyCache(false),
	)

	regionKey := NewKeyWithRegions(EntityApplication, AllApps, codec.JSON, V2, codec.AcceptFull,
		[]string{"us-west-2"})
	cache.Get(regionKey)
	require.Equal(t, 1, cache.CurrentSize())

	cache.Invalidate("ANY", "", "")
	assert.Zero(t, cache.CurrentSize())
}

func TestVersionCounters(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH")}
	cache := newTestCache(t, source,
		WithClock(clocktest.NewFakeClock()),
		WithReadOnlyCache(false),
	)

	cache.Get(NewKey(EntityApplication, AllAppsDelta, codec.JSON, V2, codec.AcceptFull))
	assert.EqualValues(t, 1, cache.VersionDelta())
	assert.Zero(t, cache.VersionDeltaWithRegions())

	cache.Get(NewKeyWithRegions(EntityApplication, AllAppsDelta, codec.JSON, V2, codec.AcceptFull,
		[]string{"eu-west-1"}))
	assert.EqualValues(t, 1, cache.VersionDelta())
	assert.EqualValues(t, 1, cache.VersionDeltaWithRegions())

	// Cached reads do not regenerate, so counters stay put.
	cache.Get(NewKey(EntityApplication, AllAppsDelta, codec.JSON, V2, codec.AcceptFull))
	assert.EqualValues(t, 1, cache.VersionDelta())
}

func TestVIPPayloadFiltersInstances(t *testing.T) {
	t.Parallel()

	source := &fakeSource{apps: snapshotOf("SEARCH", "BILLING")}
	cache := newTestCache(t, source, WithClock(clocktest.NewFakeClock()))

	payload := cache.Get(NewKey(EntityVIP, "search.vip", codec.JSON, V2, codec.AcceptFull))
	require.NotEmpty(t, payload)

	decoded, err := codec.DecodeApplications([]byte(payload), codec.JSON)
	require.NoError(t, err)
	apps := decoded.RegisteredApplications()
	require.Len(t, apps, 1)
	assert.Equal(t, "SEARCH", apps[0].Name)
	assert.Equal(t, "UP_1_", decoded.AppsHashCode)

	// The secure vip view is a different key with different contents.
	secure := cache.Get(NewKey(EntitySVIP, "billing.svip", codec.JSON, V2, codec.AcceptFull))
	decoded, err = codec.DecodeApplications([]byte(secure), codec.JSON)
	require.NoError(t, err)
	require.Len(t, decoded.RegisteredApplications(), 1)
	assert.Equal(t, "BILLING", decoded.RegisteredApplications()[0].Name)
}

func TestReconcilerPropagatesInvalidation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testClock := clocktest.NewFakeClock()
	source := &fakeSource{apps: snapshotOf("APP-X")}
	cache := newTestCache(t, source,
		WithClock(testClock),
		WithUpdateInterval(30*time.Second),
	)

	key := allAppsKey()
	stale := cache.Get(key)
	require.Contains(t, stale, "APP-X")

	// The registry changes and the read-write tier is invalidated; the
	// read-only tier still serves the old snapshot.
	source.replace(snapshotOf("APP-X", "APP-Y"))
	cache.Invalidate("APP-X", "", "")
	assert.Equal(t, stale, cache.Get(key), "read-only tier lags until the next reconciliation")

	require.NoError(t, testClock.BlockUntilContext(ctx, 1))
	testClock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		return strings.Contains(cache.Get(key), "APP-Y")
	}, 2*time.Second, 5*time.Millisecond, "reconciler overwrites the read-only value")
}

func TestKeyRegions(t *testing.T) {
	t.Parallel()

	plain := allAppsKey()
	assert.False(t, plain.HasRegions())
	assert.Nil(t, plain.Regions())

	regioned := NewKeyWithRegions(EntityApplication, AllApps, codec.JSON, V2, codec.AcceptFull,
		[]string{"us-west-2", "eu-west-1"})
	assert.True(t, regioned.HasRegions())
	assert.Equal(t, []string{"us-west-2", "eu-west-1"}, regioned.Regions(), "request order is kept")
	assert.Equal(t, plain, regioned.WithoutRegions())
	assert.NotEqual(t, plain, regioned)
}

func TestValueGzipEagerness(t *testing.T) {
	t.Parallel()

	empty := NewValue(nil)
	assert.Empty(t, empty.Payload())
	assert.Nil(t, empty.Gzipped())

	value := NewValue([]byte("payload"))
	assert.NotEmpty(t, value.Gzipped())
}
