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
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/beaconlabs/beacon/endpoint"
)

// maxFollowedRedirects bounds the redirect chain for a single request.
const maxFollowedRedirects = 10

var (
	// ErrRedirectLimitExceeded indicates a redirect chain longer than the
	// bound.
	ErrRedirectLimitExceeded = errors.New("follow redirect limit crossed")
	// ErrInvalidRedirect indicates a redirect response whose Location is
	// missing or does not point at a recognizable service path.
	ErrInvalidRedirect = errors.New("invalid redirect URL")

	redirectPathRegex = regexp.MustCompile(`(.*/v2/)apps(/.*)?$`)
)

// DNSLookup resolves a hostname to an IP address.
type DNSLookup func(host string) (string, error)

// RedirectingClient follows redirect chains and then pins itself to the
// terminal endpoint. Pinning is by IP: a load balancer that redirected to
// a specific cluster member keeps receiving follow-up requests on that
// member, without re-resolving DNS each time.
//
// The factory's clients must pass 3xx responses through without further
// processing. Methods may be called concurrently.
type RedirectingClient struct {
	decorator

	serviceEndpoint endpoint.Endpoint
	factory         Factory
	lookup          DNSLookup
	logger          *zap.Logger

	mu     sync.Mutex
	pinned Client
}

// RedirectingOption customizes a redirecting client.
type RedirectingOption func(*RedirectingClient)

// WithRedirectingLogger sets the logger. The default discards everything.
func WithRedirectingLogger(logger *zap.Logger) RedirectingOption {
	return func(c *RedirectingClient) {
		c.logger = logger
	}
}

// NewRedirectingClient creates a redirecting client for the given service
// endpoint, building per-target clients with factory and resolving
// redirect hosts with lookup.
func NewRedirectingClient(service endpoint.Endpoint, factory Factory, lookup DNSLookup, options ...RedirectingOption) *RedirectingClient {
	client := &RedirectingClient{
		serviceEndpoint: service,
		factory:         factory,
		lookup:          lookup,
		logger:          zap.NewNop(),
	}
	client.decorator = decorator{exec: client}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// NewRedirectingFactory wraps a factory so each produced client follows
// redirects against its own endpoint, resolving redirect hosts with
// lookup. No default lookup is applied here; NewCanonicalClientFactory
// passes the system resolver unless WithStackDNSLookup replaces it.
func NewRedirectingFactory(delegate Factory, lookup DNSLookup, options ...RedirectingOption) Factory {
	return redirectingFactory{delegate: delegate, lookup: lookup, options: options}
}

type redirectingFactory struct {
	delegate Factory
	lookup   DNSLookup
	options  []RedirectingOption
}

func (f redirectingFactory) NewClient(target endpoint.Endpoint) Client {
	return NewRedirectingClient(target, f.delegate, f.lookup, f.options...)
}

func (f redirectingFactory) Shutdown() {
	f.delegate.Shutdown()
}

func (c *RedirectingClient) execute(ctx context.Context, req request) (*Response, error) {
	if current := c.loadPinned(); current != nil {
		resp, err := req.do(ctx, current)
		if err != nil {
			c.logger.Error("request against pinned endpoint failed", zap.Error(err))
			c.clearPinned(current)
			current.Shutdown()
			return nil, err
		}
		return resp, nil
	}

	fresh := c.factory.NewClient(c.serviceEndpoint)
	resp, terminal, err := c.executeOnNewServer(ctx, req, fresh)
	if err != nil {
		shutdownClient(terminal)
		return nil, err
	}
	c.installPinned(terminal)
	return resp, nil
}

// executeOnNewServer chases the redirect chain starting at first,
// returning the terminal response and the client that produced it.
func (c *RedirectingClient) executeOnNewServer(ctx context.Context, req request, first Client) (*Response, Client, error) {
	current := first
	for hop := 0; hop < maxFollowedRedirects; hop++ {
		resp, err := req.do(ctx, current)
		if err != nil {
			return nil, current, err
		}
		if !resp.IsRedirect() {
			if hop > 0 {
				c.logger.Info("pinned to endpoint after redirects", zap.Int("redirects", hop))
			}
			return resp, current, nil
		}

		target, err := c.redirectBase(resp.Location)
		if err != nil {
			return nil, current, err
		}
		current.Shutdown()
		current = c.factory.NewClient(target)
	}
	c.logger.Warn("follow redirect limit crossed",
		zap.String("serviceURL", c.serviceEndpoint.ServiceURL()))
	return nil, current, fmt.Errorf("%w for %s", ErrRedirectLimitExceeded, c.serviceEndpoint.ServiceURL())
}

// redirectBase derives the endpoint to retry against from a redirect
// Location: the host is resolved to an IP and the path is cut back to the
// captured service prefix.
func (c *RedirectingClient) redirectBase(location *url.URL) (endpoint.Endpoint, error) {
	if location == nil {
		return endpoint.Endpoint{}, fmt.Errorf("%w: missing Location header", ErrInvalidRedirect)
	}
	match := redirectPathRegex.FindStringSubmatch(location.Path)
	if match == nil {
		c.logger.Warn("invalid redirect URL", zap.String("location", location.String()))
		return endpoint.Endpoint{}, fmt.Errorf("%w: %s", ErrInvalidRedirect, location)
	}
	ip, err := c.lookup(location.Hostname())
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("%w: resolving %s: %v", ErrInvalidRedirect, location.Hostname(), err)
	}
	port := 0
	if p := location.Port(); p != "" {
		fmt.Sscanf(p, "%d", &port) //nolint:errcheck // a URL port is already numeric
	}
	return endpoint.Endpoint{
		Host:       ip,
		Port:       port,
		Secure:     location.Scheme == "https",
		PathPrefix: match[1],
	}, nil
}

// Shutdown releases the pinned client, if any.
func (c *RedirectingClient) Shutdown() {
	c.mu.Lock()
	pinned := c.pinned
	c.pinned = nil
	c.mu.Unlock()
	shutdownClient(pinned)
}

func (c *RedirectingClient) loadPinned() Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// installPinned swaps the terminal client in, closing any predecessor.
func (c *RedirectingClient) installPinned(client Client) {
	c.mu.Lock()
	previous := c.pinned
	c.pinned = client
	c.mu.Unlock()
	if previous != nil && previous != client {
		previous.Shutdown()
	}
}

// clearPinned drops the pin only if it still is the observed client.
func (c *RedirectingClient) clearPinned(observed Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned == observed {
		c.pinned = nil
	}
}
