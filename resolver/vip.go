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

// VIPSource queries a running cluster for the applications registered
// under a VIP address. The transport package provides an implementation
// backed by the query client.
type VIPSource interface {
	VIPApplications(vip string) (*registry.Applications, error)
}

// vipResolver resolves endpoints by asking a remote cluster which
// instances are registered under a VIP. It is the remote leg of the
// composite resolver.
type vipResolver struct {
	region string
	vip    string
	port   int
	useIP  bool
	source VIPSource
	logger *zap.Logger
}

// VIPResolverOption customizes a VIP resolver.
type VIPResolverOption func(*vipResolver)

// WithVIPResolverUseIP selects the instance IP over its hostname.
func WithVIPResolverUseIP(useIP bool) VIPResolverOption {
	return func(r *vipResolver) {
		r.useIP = useIP
	}
}

// WithVIPResolverLogger sets the logger.
func WithVIPResolverLogger(logger *zap.Logger) VIPResolverOption {
	return func(r *vipResolver) {
		r.logger = logger
	}
}

// NewVIPResolver creates a resolver that queries source for the instances
// of vip.
func NewVIPResolver(region, vip string, defaultPort int, source VIPSource, options ...VIPResolverOption) Resolver {
	res := &vipResolver{
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

func (r *vipResolver) Region() string {
	return r.region
}

func (r *vipResolver) Endpoints() []endpoint.Endpoint {
	apps, err := r.source.VIPApplications(r.vip)
	if err != nil {
		r.logger.Warn("vip query failed", zap.String("vip", r.vip), zap.Error(err))
		return nil
	}
	if apps == nil {
		return nil
	}
	var endpoints []endpoint.Endpoint
	for _, app := range apps.RegisteredApplications() {
		for _, info := range app.Instances() {
			if info.Status != registry.StatusUp {
				continue
			}
			host := info.HostName
			if r.useIP {
				host = info.IPAddr
			}
			if host == "" {
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
