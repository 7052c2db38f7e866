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

// Package cache implements the peer-aware response cache: a read-write
// tier that loads and expires encoded registry payloads, and an optional
// read-only snapshot tier reconciled against it in the background.
package cache

import (
	"strings"

	"github.com/beaconlabs/beacon/codec"
)

// EntityType classifies what a cache key addresses.
type EntityType string

const (
	EntityApplication EntityType = "Application"
	EntityVIP         EntityType = "VIP"
	EntitySVIP        EntityType = "SVIP"
)

// Sentinel names for the aggregate application payloads.
const (
	AllApps      = "ALL_APPS"
	AllAppsDelta = "ALL_APPS_DELTA"
)

// APIVersion is the registry API version a payload is rendered for.
type APIVersion string

const (
	V1 APIVersion = "V1"
	V2 APIVersion = "V2"
)

// APIVersions lists every supported API version.
func APIVersions() []APIVersion {
	return []APIVersion{V1, V2}
}

// Key identifies one cached payload. Keys are values: two keys are equal
// iff every field is equal, including the requested region tuple.
type Key struct {
	Entity      EntityType
	Name        string
	ContentType codec.ContentType
	Version     APIVersion
	Accept      codec.AcceptLevel

	// regions is the requested region tuple in request order, joined
	// with commas. Empty means no region parameterization.
	regions string
}

// NewKey builds a regionless key.
func NewKey(entity EntityType, name string, contentType codec.ContentType, version APIVersion, accept codec.AcceptLevel) Key {
	return Key{Entity: entity, Name: name, ContentType: contentType, Version: version, Accept: accept}
}

// NewKeyWithRegions builds a key parameterized by the requested regions,
// kept in request order.
func NewKeyWithRegions(entity EntityType, name string, contentType codec.ContentType, version APIVersion, accept codec.AcceptLevel, regions []string) Key {
	key := NewKey(entity, name, contentType, version, accept)
	key.regions = strings.Join(regions, ",")
	return key
}

// HasRegions reports whether the key carries a region tuple.
func (k Key) HasRegions() bool {
	return k.regions != ""
}

// Regions returns the requested region tuple.
func (k Key) Regions() []string {
	if k.regions == "" {
		return nil
	}
	return strings.Split(k.regions, ",")
}

// WithoutRegions returns the canonical regionless sibling of the key.
func (k Key) WithoutRegions() Key {
	k.regions = ""
	return k
}

func (k Key) String() string {
	parts := []string{string(k.Entity), k.Name, string(k.ContentType), string(k.Version), string(k.Accept)}
	if k.regions != "" {
		parts = append(parts, k.regions)
	}
	return strings.Join(parts, "|")
}
