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
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/beaconlabs/beacon/codec"
	"github.com/beaconlabs/beacon/internal"
	"github.com/beaconlabs/beacon/registry"
)

const readWriteCacheSize = 1000

const (
	defaultAutoExpiration = 180 * time.Second
	defaultUpdateInterval = 30 * time.Second
)

// RegistrySource supplies the registry snapshots the cache encodes. The
// registry store itself is an external collaborator; the cache only pulls
// snapshots and deltas from it.
type RegistrySource interface {
	Applications() *registry.Applications
	ApplicationsForRegions(regions []string) *registry.Applications
	Deltas() *registry.Applications
	DeltasForRegions(regions []string) *registry.Applications
	Application(name string) *registry.Application
}

// ResponseCache caches encoded registry payloads in two tiers. The
// read-write tier loads on miss, expires entries some time after write,
// and is the tier invalidation evicts from. The read-only tier is a plain
// snapshot map refreshed by a background reconciler; readers hitting it
// never contend with payload generation, at the price of lagging at most
// one reconciliation interval behind.
type ResponseCache struct {
	source      RegistrySource
	useReadOnly bool
	interval    time.Duration
	clock       internal.Clock
	logger      *zap.Logger

	roMu     sync.RWMutex
	readOnly map[Key]*Value

	readWrite *expirable.LRU[Key, *Value]
	group     singleflight.Group

	regionMu   sync.Mutex
	regionKeys map[Key]map[Key]struct{}

	versionDelta            atomic.Int64
	versionDeltaWithRegions atomic.Int64

	closeOnce  sync.Once
	done       chan struct{}
	doneSignal chan struct{}
}

// Option customizes a ResponseCache.
type Option func(*settings)

type settings struct {
	autoExpiration time.Duration
	interval       time.Duration
	useReadOnly    bool
	clock          internal.Clock
	logger         *zap.Logger
}

// WithAutoExpiration sets the read-write tier's expire-after-write TTL.
// Default 180s.
func WithAutoExpiration(ttl time.Duration) Option {
	return func(s *settings) {
		s.autoExpiration = ttl
	}
}

// WithUpdateInterval sets the read-only reconciliation period. Default
// 30s.
func WithUpdateInterval(interval time.Duration) Option {
	return func(s *settings) {
		s.interval = interval
	}
}

// WithReadOnlyCache toggles the read-only tier. Default on; turning it
// off trades throughput for tighter consistency.
func WithReadOnlyCache(enabled bool) Option {
	return func(s *settings) {
		s.useReadOnly = enabled
	}
}

// WithClock substitutes the clock driving the reconciler.
func WithClock(clock internal.Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New creates a response cache over the given registry source and starts
// the reconciler when the read-only tier is enabled.
func New(source RegistrySource, options ...Option) *ResponseCache {
	opts := &settings{
		autoExpiration: defaultAutoExpiration,
		interval:       defaultUpdateInterval,
		useReadOnly:    true,
		clock:          internal.NewRealClock(),
		logger:         zap.NewNop(),
	}
	for _, opt := range options {
		opt(opts)
	}

	cache := &ResponseCache{
		source:      source,
		useReadOnly: opts.useReadOnly,
		interval:    opts.interval,
		clock:       opts.clock,
		logger:      opts.logger,
		readOnly:    map[Key]*Value{},
		regionKeys:  map[Key]map[Key]struct{}{},
		done:        make(chan struct{}),
		doneSignal:  make(chan struct{}),
	}
	cache.readWrite = expirable.NewLRU[Key, *Value](readWriteCacheSize, cache.onRemoval, opts.autoExpiration)

	if cache.useReadOnly {
		go cache.reconcile()
	} else {
		close(cache.doneSignal)
	}
	return cache
}

// onRemoval drops the region index entry of an evicted region-keyed
// entry, whether it expired or was invalidated.
func (c *ResponseCache) onRemoval(key Key, _ *Value) {
	if !key.HasRegions() {
		return
	}
	c.regionMu.Lock()
	defer c.regionMu.Unlock()
	if siblings, ok := c.regionKeys[key.WithoutRegions()]; ok {
		delete(siblings, key)
		if len(siblings) == 0 {
			delete(c.regionKeys, key.WithoutRegions())
		}
	}
}

// Get returns the cached payload for the key, generating it on first
// request. An empty result means the key has no data.
func (c *ResponseCache) Get(key Key) string {
	value := c.value(key, c.useReadOnly)
	if value == nil {
		return ""
	}
	return string(value.Payload())
}

// GetGzip returns the gzipped payload for the key, or nil when the key
// has no data.
func (c *ResponseCache) GetGzip(key Key) []byte {
	value := c.value(key, c.useReadOnly)
	if value == nil {
		return nil
	}
	return value.Gzipped()
}

func (c *ResponseCache) value(key Key, useReadOnly bool) *Value {
	if useReadOnly {
		c.roMu.RLock()
		value, ok := c.readOnly[key]
		c.roMu.RUnlock()
		if ok {
			return value
		}
		value = c.readWriteValue(key)
		if value != nil {
			c.roMu.Lock()
			c.readOnly[key] = value
			c.roMu.Unlock()
		}
		return value
	}
	return c.readWriteValue(key)
}

// readWriteValue loads the key through the read-write tier. Concurrent
// misses on the same key coalesce into a single payload generation.
func (c *ResponseCache) readWriteValue(key Key) *Value {
	if value, ok := c.readWrite.Get(key); ok {
		return value
	}
	result, _, _ := c.group.Do(key.String(), func() (any, error) {
		if value, ok := c.readWrite.Get(key); ok {
			return value, nil
		}
		if key.HasRegions() {
			c.recordRegionKey(key)
		}
		value := c.generatePayload(key)
		c.readWrite.Add(key, value)
		return value, nil
	})
	value, _ := result.(*Value)
	return value
}

func (c *ResponseCache) recordRegionKey(key Key) {
	c.regionMu.Lock()
	defer c.regionMu.Unlock()
	regionless := key.WithoutRegions()
	siblings, ok := c.regionKeys[regionless]
	if !ok {
		siblings = map[Key]struct{}{}
		c.regionKeys[regionless] = siblings
	}
	siblings[key] = struct{}{}
}

// generatePayload encodes the registry data the key addresses. Encoding
// failures produce an empty value, which readers treat as "no data".
func (c *ResponseCache) generatePayload(key Key) *Value {
	encoder := codec.EncoderFor(key.ContentType, key.Accept)
	var payload []byte
	var err error

	switch key.Entity {
	case EntityApplication:
		switch key.Name {
		case AllApps:
			if key.HasRegions() {
				payload, err = encoder.EncodeApplications(c.source.ApplicationsForRegions(key.Regions()))
			} else {
				payload, err = encoder.EncodeApplications(c.source.Applications())
			}
		case AllAppsDelta:
			if key.HasRegions() {
				c.versionDeltaWithRegions.Add(1)
				payload, err = encoder.EncodeApplications(c.source.DeltasForRegions(key.Regions()))
			} else {
				c.versionDelta.Add(1)
				payload, err = encoder.EncodeApplications(c.source.Deltas())
			}
		default:
			app := c.source.Application(key.Name)
			if app == nil {
				return NewValue(nil)
			}
			payload, err = encoder.EncodeApplication(app)
		}
	case EntityVIP, EntitySVIP:
		payload, err = encoder.EncodeApplications(c.applicationsForVIP(key))
	default:
		c.logger.Error("unidentified entity type in cache key",
			zap.String("entityType", string(key.Entity)))
		return NewValue(nil)
	}

	if err != nil {
		c.logger.Error("failed to encode payload", zap.String("key", key.String()), zap.Error(err))
		return NewValue(nil)
	}
	return NewValue(payload)
}

// applicationsForVIP builds the view of every instance registered under
// the key's (secure) vip address.
func (c *ResponseCache) applicationsForVIP(key Key) *registry.Applications {
	secure := key.Entity == EntitySVIP
	result := registry.NewApplications()
	for _, app := range c.source.Applications().RegisteredApplications() {
		var filtered *registry.Application
		for _, info := range app.Instances() {
			if !info.ServesVIP(key.Name, secure) {
				continue
			}
			if filtered == nil {
				filtered = registry.NewApplication(app.Name)
				result.AddApplication(filtered)
			}
			filtered.AddInstance(info)
		}
	}
	result.SetAppsHashCode(result.ReconcileHash())
	return result
}

// reconcile copies changed read-write values over the read-only snapshot
// at every tick. Entries missing from the read-write tier (expired or
// invalidated) are regenerated through the normal load path first, so the
// comparison always sees a live value.
func (c *ResponseCache) reconcile() {
	defer close(c.doneSignal)
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			c.reconcileOnce()
		}
	}
}

func (c *ResponseCache) reconcileOnce() {
	c.logger.Debug("updating the read-only cache from the read-write cache")
	c.roMu.RLock()
	keys := make([]Key, 0, len(c.readOnly))
	for key := range c.readOnly {
		keys = append(keys, key)
	}
	c.roMu.RUnlock()

	for _, key := range keys {
		current := c.readWriteValue(key)
		c.roMu.Lock()
		if c.readOnly[key] != current {
			c.readOnly[key] = current
		}
		c.roMu.Unlock()
	}
}

// Invalidate evicts every read-write entry for the application and the
// aggregate payloads across every content type, API version, and
// acceptance level, and, when given, the full-acceptance vip and secure
// vip views across every content type and API version. The read-only
// tier is left alone; the next reconciliation propagates the change.
func (c *ResponseCache) Invalidate(appName, vipAddress, secureVIPAddress string) {
	for _, contentType := range codec.ContentTypes() {
		for _, version := range APIVersions() {
			for _, accept := range codec.AcceptLevels() {
				c.invalidateKeys(
					NewKey(EntityApplication, appName, contentType, version, accept),
					NewKey(EntityApplication, AllApps, contentType, version, accept),
					NewKey(EntityApplication, AllAppsDelta, contentType, version, accept),
				)
			}
			if vipAddress != "" {
				c.invalidateKeys(NewKey(EntityVIP, vipAddress, contentType, version, codec.AcceptFull))
			}
			if secureVIPAddress != "" {
				c.invalidateKeys(NewKey(EntitySVIP, secureVIPAddress, contentType, version, codec.AcceptFull))
			}
		}
	}
}

// invalidateKeys evicts the given keys and every region-parameterized
// sibling recorded for them.
func (c *ResponseCache) invalidateKeys(keys ...Key) {
	for _, key := range keys {
		c.logger.Debug("invalidating response cache key", zap.String("key", key.String()))

		c.regionMu.Lock()
		siblings := make([]Key, 0, len(c.regionKeys[key]))
		for sibling := range c.regionKeys[key] {
			siblings = append(siblings, sibling)
		}
		c.regionMu.Unlock()

		c.readWrite.Remove(key)
		for _, sibling := range siblings {
			c.readWrite.Remove(sibling)
		}
	}
}

// CurrentSize reports the number of read-write entries.
func (c *ResponseCache) CurrentSize() int {
	return c.readWrite.Len()
}

// VersionDelta counts regionless delta payload generations.
func (c *ResponseCache) VersionDelta() int64 {
	return c.versionDelta.Load()
}

// VersionDeltaWithRegions counts region-parameterized delta payload
// generations.
func (c *ResponseCache) VersionDeltaWithRegions() int64 {
	return c.versionDeltaWithRegions.Load()
}

// Shutdown stops the reconciler. It is idempotent.
func (c *ResponseCache) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.doneSignal
	})
}
