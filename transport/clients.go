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

package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/codec"
	"github.com/beaconlabs/beacon/config"
	"github.com/beaconlabs/beacon/internal"
	"github.com/beaconlabs/beacon/registry"
	"github.com/beaconlabs/beacon/resolver"
)

// Client stack names, used in logs.
const (
	BootstrapName    = "bootstrap"
	QueryName        = "query"
	RegistrationName = "registration"
)

// CompositeBootstrapStrategy is the configuration value selecting the
// vip-based bootstrap resolver hierarchy.
const CompositeBootstrapStrategy = "composite"

// StackOption customizes the canonical client stacks and resolvers.
type StackOption func(*stackOptions)

type stackOptions struct {
	logger *zap.Logger
	clock  internal.Clock
	lookup DNSLookup
}

// WithStackLogger sets the logger for every layer of the stack.
func WithStackLogger(logger *zap.Logger) StackOption {
	return func(o *stackOptions) {
		o.logger = logger
	}
}

// WithStackClock substitutes the clock for session expiry and resolver
// refresh schedules.
func WithStackClock(clock internal.Clock) StackOption {
	return func(o *stackOptions) {
		o.clock = clock
	}
}

// WithStackDNSLookup substitutes the DNS lookup used when following
// redirects.
func WithStackDNSLookup(lookup DNSLookup) StackOption {
	return func(o *stackOptions) {
		o.lookup = lookup
	}
}

func newStackOptions(options []StackOption) *stackOptions {
	opts := &stackOptions{
		logger: zap.NewNop(),
		clock:  internal.NewRealClock(),
		lookup: systemDNSLookup,
	}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// systemDNSLookup resolves a hostname through the system resolver,
// preferring IPv4 addresses.
func systemDNSLookup(host string) (string, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].String(), nil
	}
	return "", fmt.Errorf("no addresses for host %s", host)
}

// NewCanonicalClientFactory assembles the full decorator stack: each
// produced client is session-bounded, retries over the resolver's
// candidates, and follows redirects down at the endpoint level.
func NewCanonicalClientFactory(name string, res resolver.Resolver, wire Factory, cfg *config.Transport, options ...StackOption) ClientFactory {
	opts := newStackOptions(options)
	return &canonicalFactory{
		name: name,
		res:  res,
		cfg:  cfg,
		opts: opts,
		redirecting: NewRedirectingFactory(wire, opts.lookup,
			WithRedirectingLogger(opts.logger)),
	}
}

type canonicalFactory struct {
	name        string
	res         resolver.Resolver
	cfg         *config.Transport
	opts        *stackOptions
	redirecting Factory
}

func (f *canonicalFactory) NewClient() Client {
	retryable := NewRetryableFactory(f.name, f.res, f.redirecting, LegacyEvaluator(),
		WithQuarantineRefreshFraction(f.cfg.RetryableClientQuarantineRefreshPercentage),
		WithRetryableLogger(f.opts.logger),
	)
	return NewSessionedClient(f.name, retryable, f.cfg.SessionedClientReconnectInterval(),
		WithSessionedClock(f.opts.clock),
		WithSessionedLogger(f.opts.logger),
	)
}

func (f *canonicalFactory) Shutdown() {
	resolver.WrapClosable(f.res).Shutdown()
}

// NewBootstrapResolver builds the endpoint resolver used until richer
// sources are available: the static configuration behind zone affinity
// and an async cache. With the composite strategy (and registry fetch
// enabled), locally-fetched applications are preferred and the write
// cluster vip is queried as a fallback.
func NewBootstrapResolver(
	cfg *config.Config,
	instanceZone string,
	appsSource resolver.ApplicationsSource,
	vipSource resolver.VIPSource,
	options ...StackOption,
) (resolver.Closable, error) {
	opts := newStackOptions(options)
	clientCfg := &cfg.Client
	myZone := clientCfg.LocalZone(instanceZone)
	leaf := NewConfigResolverFromConfig(clientCfg, opts.logger)

	base := leaf
	if cfg.Transport.BootstrapResolverStrategy == CompositeBootstrapStrategy {
		if clientCfg.ShouldFetchRegistry {
			base = newVIPCompositeResolver(clientCfg.Region, cfg.Transport.WriteClusterVIP,
				&cfg.Transport, appsSource, vipSource, opts)
		} else {
			opts.logger.Warn("cannot create a composite bootstrap resolver if registry fetch is disabled," +
				" falling back to the default bootstrap resolver")
		}
	}

	delegate := resolver.NewZoneAffinityResolver(base, myZone, true,
		resolver.WithZoneAffinityLogger(opts.logger))
	return resolver.NewAsyncResolver(BootstrapName, delegate,
		resolver.WithRefreshInterval(clientCfg.ServiceURLPollInterval()),
		resolver.WithWarmUpTimeout(cfg.Transport.AsyncResolverWarmUpTimeout()),
		resolver.WithFailFast(cfg.Transport.BootstrapFailFast),
		resolver.WithAsyncClock(opts.clock),
		resolver.WithAsyncLogger(opts.logger),
	)
}

// NewQueryClientFactory builds the factory for query clients. Unless the
// bootstrap resolver is shared by configuration, queries resolve through
// the read cluster vip with local registry data preferred.
func NewQueryClientFactory(
	cfg *config.Config,
	bootstrap resolver.Closable,
	wire Factory,
	instanceZone string,
	appsSource resolver.ApplicationsSource,
	vipSource resolver.VIPSource,
	options ...StackOption,
) (ClientFactory, error) {
	opts := newStackOptions(options)
	queryResolver := resolver.Closable(bootstrap)
	if !cfg.Transport.UseBootstrapResolverForQuery {
		composite := newVIPCompositeResolver(cfg.Client.Region, cfg.Transport.ReadClusterVIP,
			&cfg.Transport, appsSource, vipSource, opts)
		affine := resolver.NewZoneAffinityResolver(composite, cfg.Client.LocalZone(instanceZone), true,
			resolver.WithZoneAffinityLogger(opts.logger))
		async, err := resolver.NewAsyncResolver(QueryName, affine,
			resolver.WithRefreshInterval(cfg.Transport.AsyncResolverRefreshInterval()),
			resolver.WithWarmUpTimeout(cfg.Transport.AsyncResolverWarmUpTimeout()),
			resolver.WithAsyncClock(opts.clock),
			resolver.WithAsyncLogger(opts.logger),
		)
		if err != nil {
			return nil, err
		}
		queryResolver = async
	}
	return NewCanonicalClientFactory(QueryName, queryResolver, wire, &cfg.Transport, options...), nil
}

// NewRegistrationClientFactory builds the factory for registration
// clients, always over the bootstrap resolver.
func NewRegistrationClientFactory(cfg *config.Config, bootstrap resolver.Closable, wire Factory, options ...StackOption) ClientFactory {
	return NewCanonicalClientFactory(RegistrationName, bootstrap, wire, &cfg.Transport, options...)
}

// NewConfigResolverFromConfig builds the leaf resolver over the client
// configuration's zones and service URLs.
func NewConfigResolverFromConfig(clientCfg *config.Client, logger *zap.Logger) resolver.Resolver {
	return resolver.NewConfigResolver(
		clientCfg.Region,
		clientCfg.ZonesForRegion(clientCfg.Region),
		func(zone string) []string {
			return clientCfg.ServiceURLs[zone]
		},
		resolver.WithConfigLogger(logger),
	)
}

func newVIPCompositeResolver(
	region, vip string,
	transportCfg *config.Transport,
	appsSource resolver.ApplicationsSource,
	vipSource resolver.VIPSource,
	opts *stackOptions,
) resolver.Resolver {
	local := resolver.NewApplicationsResolver(region, vip, 0, appsSource,
		resolver.WithApplicationsResolverUseIP(transportCfg.ApplicationsResolverUseIP),
		resolver.WithApplicationsResolverLogger(opts.logger),
	)
	remote := resolver.NewVIPResolver(region, vip, 0, vipSource,
		resolver.WithVIPResolverUseIP(transportCfg.ApplicationsResolverUseIP),
		resolver.WithVIPResolverLogger(opts.logger),
	)
	return resolver.NewCompositeResolver(region, local, remote)
}

// VIPSourceFromClient adapts a query-capable client into the resolver's
// vip source contract.
func VIPSourceFromClient(client Client) resolver.VIPSource {
	return clientVIPSource{client: client}
}

type clientVIPSource struct {
	client Client
}

func (s clientVIPSource) VIPApplications(vip string) (*registry.Applications, error) {
	resp, err := s.client.GetVIP(context.Background(), vip)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("vip query for %s returned status %d", vip, resp.StatusCode)
	}
	return codec.DecodeApplications(resp.Body, codec.JSON)
}
