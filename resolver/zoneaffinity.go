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
	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/endpoint"
)

// zoneAffinityResolver reorders a delegate's endpoints so that servers in
// the client's own zone come first, each zone group shuffled with the
// host-stable randomization. With affinity disabled the concatenation is
// reversed, putting other-zone servers first.
type zoneAffinityResolver struct {
	delegate Resolver
	myZone   string
	affinity bool
	logger   *zap.Logger
}

// ZoneAffinityOption customizes a zone-affinity resolver.
type ZoneAffinityOption func(*zoneAffinityResolver)

// WithZoneAffinityLogger sets the logger. The default discards everything.
func WithZoneAffinityLogger(logger *zap.Logger) ZoneAffinityOption {
	return func(r *zoneAffinityResolver) {
		r.logger = logger
	}
}

// NewZoneAffinityResolver wraps delegate with zone-affine ordering for
// myZone. affinity=false selects anti-affinity: local-zone servers last.
func NewZoneAffinityResolver(delegate Resolver, myZone string, affinity bool, options ...ZoneAffinityOption) Resolver {
	res := &zoneAffinityResolver{
		delegate: delegate,
		myZone:   myZone,
		affinity: affinity,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(res)
	}
	return res
}

func (r *zoneAffinityResolver) Region() string {
	return r.delegate.Region()
}

func (r *zoneAffinityResolver) Endpoints() []endpoint.Endpoint {
	local, other := endpoint.SplitByZone(r.delegate.Endpoints(), r.myZone)
	ordered := randomizeAndMerge(local, other)
	if !r.affinity {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	r.logger.Debug("resolved cluster endpoints",
		zap.String("zone", r.myZone), zap.Int("count", len(ordered)))
	return ordered
}

func randomizeAndMerge(local, other []endpoint.Endpoint) []endpoint.Endpoint {
	if len(local) == 0 {
		return endpoint.Randomize(other)
	}
	if len(other) == 0 {
		return endpoint.Randomize(local)
	}
	return append(endpoint.Randomize(local), endpoint.Randomize(other)...)
}
