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

// ServiceURLSource returns the configured service URLs for a zone.
type ServiceURLSource func(zone string) []string

// configResolver is the leaf resolver producing endpoints from static
// configuration keyed by region and zone. Output order follows the
// configured zone order; callers wanting locality apply a zone-affinity
// resolver on top.
type configResolver struct {
	region string
	zones  []string
	urls   ServiceURLSource
	logger *zap.Logger
}

// ConfigResolverOption customizes the config resolver.
type ConfigResolverOption func(*configResolver)

// WithConfigLogger sets the logger. The default discards everything.
func WithConfigLogger(logger *zap.Logger) ConfigResolverOption {
	return func(r *configResolver) {
		r.logger = logger
	}
}

// NewConfigResolver creates a leaf resolver over the given region, its
// zones (in configured order), and the per-zone service URL source.
func NewConfigResolver(region string, zones []string, urls ServiceURLSource, options ...ConfigResolverOption) Resolver {
	res := &configResolver{
		region: region,
		zones:  append([]string(nil), zones...),
		urls:   urls,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(res)
	}
	return res
}

func (r *configResolver) Region() string {
	return r.region
}

func (r *configResolver) Endpoints() []endpoint.Endpoint {
	var endpoints []endpoint.Endpoint
	for _, zone := range r.zones {
		for _, serviceURL := range r.urls(zone) {
			parsed, err := endpoint.New(serviceURL)
			if err != nil {
				r.logger.Warn("skipping malformed service URL",
					zap.String("url", serviceURL), zap.Error(err))
				continue
			}
			parsed.Region = r.region
			parsed.Zone = zone
			endpoints = append(endpoints, parsed)
		}
	}
	return endpoints
}
