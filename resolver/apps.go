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
	"github.com/beaconlabs/beacon/registry"
)

// ApplicationsSource supplies the latest locally-fetched registry
// snapshot, or nil when none has been fetched yet.
type ApplicationsSource func() *registry.Applications

// applicationsResolver derives endpoints from the instances registered
// under a VIP address in the local registry snapshot. Only UP instances
// qualify. The network address is the hostname, or the IP when useIP is
// set.
type applicationsResolver struct {
	region string
	vip    string
	port   int
	useIP  bool
	source ApplicationsSource
	logger *zap.Logger
}

// ApplicationsResolverOption customizes an applications resolver.
type ApplicationsResolverOption func(*applicationsResolver)

// WithApplicationsResolverUseIP selects the instance IP over its hostname
// when deriving endpoints.
func WithApplicationsResolverUseIP(useIP bool) ApplicationsResolverOption {
	return func(r *applicationsResolver) {
		r.useIP = useIP
	}
}

// WithApplicationsResolverLogger sets the logger.
func WithApplicationsResolverLogger(logger *zap.Logger) ApplicationsResolverOption {
	return func(r *applicationsResolver) {
		r.logger = logger
	}
}

// NewApplicationsResolver creates a resolver over the instances serving
// vip in the snapshots produced by source. defaultPort is used when an
// instance reports no port.
func NewApplicationsResolver(region, vip string, defaultPort int, source ApplicationsSource, options ...ApplicationsResolverOption) Resolver {
	res := &applicationsResolver{
		region: region,
		vip:    vip,
		port:   defaultPort,
		source: source,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(res)
	}
	return res
}

func (r *applicationsResolver) Region() string {
	return r.region
}

func (r *applicationsResolver) Endpoints() []endpoint.Endpoint {
	apps := r.source()
	if apps == nil {
		return nil
	}
	var endpoints []endpoint.Endpoint
	for _, app := range apps.RegisteredApplications() {
		for _, info := range app.Instances() {
			if info.Status != registry.StatusUp || !info.ServesVIP(r.vip, false) {
				continue
			}
			host := info.HostName
			if r.useIP {
				host = info.IPAddr
			}
			if host == "" {
				r.logger.Warn("cannot resolve instance to an endpoint, skipping",
					zap.String("instance", info.ID))
				continue
			}
			port := info.Port
			if port == 0 {
				port = r.port
			}
			endpoints = append(endpoints, endpoint.Endpoint{
				Host:   host,
				Port:   port,
				Region: r.region,
				Zone:   info.Zone,
			})
		}
	}
	return endpoints
}
