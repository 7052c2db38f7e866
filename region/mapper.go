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

// Package region maintains the availability-zone to region mapping used to
// decide which instances are local to a client.
package region

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultZone is the sentinel zone name used by configurations that do not
// pin instances to a real availability zone.
const DefaultZone = "defaultZone"

// ErrMappingMissing indicates a region was configured to be fetched but has
// neither configured zones nor an entry in the default mapping table.
var ErrMappingMissing = errors.New("no availability zone mapping for region")

// ZoneSource returns the configured availability zones of a region.
type ZoneSource func(region string) []string

// Mapper maintains a zone to region lookup. If a remote region is
// configured to be fetched but carries no zone mapping of its own, a
// built-in default table is consulted.
type Mapper struct {
	zones  ZoneSource
	logger *zap.Logger

	mu             sync.Mutex
	zoneToRegion   map[string]string
	regionsToFetch []string
}

// MapperOption customizes a Mapper.
type MapperOption func(*Mapper)

// WithMapperLogger sets the logger. The default discards everything.
func WithMapperLogger(logger *zap.Logger) MapperOption {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// NewMapper creates a Mapper backed by the given zone source.
func NewMapper(zones ZoneSource, options ...MapperOption) *Mapper {
	mapper := &Mapper{
		zones:        zones,
		logger:       zap.NewNop(),
		zoneToRegion: map[string]string{},
	}
	for _, opt := range options {
		opt(mapper)
	}
	return mapper
}

// defaultRegionZones is the mapping used when a fetched region has no zone
// information of its own. Once the region does carry zones, these are
// ignored.
var defaultRegionZones = map[string][]string{
	"us-east-1": {"us-east-1a", "us-east-1c", "us-east-1d", "us-east-1e"},
	"us-west-1": {"us-west-1a", "us-west-1c"},
	"us-west-2": {"us-west-2a", "us-west-2b", "us-west-2c"},
	"eu-west-1": {"eu-west-1a", "eu-west-1b", "eu-west-1c"},
}

// ConfigureRegionsToFetch rebuilds the zone to region map for the given
// regions. A nil slice erases any previous mapping.
func (m *Mapper) ConfigureRegionsToFetch(regions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureLocked(regions)
}

func (m *Mapper) configureLocked(regions []string) error {
	if regions == nil {
		m.logger.Info("regions to fetch is nil, erasing zone mapping")
		m.zoneToRegion = map[string]string{}
		m.regionsToFetch = nil
		return nil
	}

	rebuilt := map[string]string{}
	for _, reg := range regions {
		zones := m.zones(reg)
		if len(zones) == 0 || (len(zones) == 1 && zones[0] == DefaultZone) {
			defaults, ok := defaultRegionZones[reg]
			if !ok {
				return fmt.Errorf("%w: %s", ErrMappingMissing, reg)
			}
			m.logger.Info("no zone information for region, using defaults",
				zap.String("region", reg))
			zones = defaults
		}
		for _, zone := range zones {
			rebuilt[zone] = reg
		}
	}

	m.zoneToRegion = rebuilt
	m.regionsToFetch = append([]string(nil), regions...)
	m.logger.Info("rebuilt zone to region mapping", zap.Int("zones", len(rebuilt)))
	return nil
}

// RegionFor returns the region mapped to the given zone. Unknown zones
// fall back to the trailing-character heuristic: if stripping the last
// character of the zone yields a region already present in the mapping,
// that region is returned. An empty result means the zone is local.
func (m *Mapper) RegionFor(zone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.zoneToRegion[zone]; ok {
		return reg
	}
	if zone == "" {
		return ""
	}
	possible := zone[:len(zone)-1]
	for _, reg := range m.zoneToRegion {
		if reg == possible {
			return possible
		}
	}
	return ""
}

// Refresh re-applies the last configured region list.
func (m *Mapper) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureLocked(m.regionsToFetch)
}
