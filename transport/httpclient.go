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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/registry"
)

const defaultDialTimeout = 30 * time.Second

// FactoryOption customizes the wire-level client factory.
type FactoryOption func(*httpFactory)

// WithRequestTimeout bounds each HTTP request end to end. Zero means no
// timeout beyond the request context.
func WithRequestTimeout(timeout time.Duration) FactoryOption {
	return func(f *httpFactory) {
		f.timeout = timeout
	}
}

// WithTLSConfig supplies TLS configuration for https endpoints.
func WithTLSConfig(config *tls.Config) FactoryOption {
	return func(f *httpFactory) {
		f.tlsConfig = config
	}
}

// WithH2C enables cleartext HTTP/2. The returned transport dials plain TCP
// for every endpoint, https ones included, while speaking the HTTP/2
// framing; the WithTLSConfig setting is not used in this mode.
func WithH2C(enabled bool) FactoryOption {
	return func(f *httpFactory) {
		f.h2c = enabled
	}
}

// NewFactory creates the wire-level client factory. Every client it
// produces shares one underlying transport; Shutdown closes the
// transport's idle connections.
func NewFactory(options ...FactoryOption) Factory {
	factory := &httpFactory{}
	for _, opt := range options {
		opt(factory)
	}
	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultDialTimeout}
	if factory.h2c {
		factory.transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				// The standard library refuses to dial cleartext HTTP/2, so
				// this "TLS" dialer returns a plain connection.
				return dialer.DialContext(ctx, network, addr)
			},
		}
	} else {
		factory.transport = &http.Transport{
			DialContext:     dialer.DialContext,
			TLSClientConfig: factory.tlsConfig,
			Proxy:           http.ProxyFromEnvironment,
		}
	}
	return factory
}

type httpFactory struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	h2c       bool
	transport http.RoundTripper
}

func (f *httpFactory) NewClient(target endpoint.Endpoint) Client {
	return &httpClient{
		baseURL: strings.TrimSuffix(target.ServiceURL(), "/") + "/",
		httpClient: &http.Client{
			Transport: f.transport,
			Timeout:   f.timeout,
			// Redirects are the responsibility of the redirecting
			// decorator; surface them verbatim.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *httpFactory) Shutdown() {
	type idleCloser interface{ CloseIdleConnections() }
	if closer, ok := f.transport.(idleCloser); ok {
		closer.CloseIdleConnections()
	}
}

// httpClient executes discovery operations against a single endpoint.
type httpClient struct {
	baseURL    string
	httpClient *http.Client
	closed     atomic.Bool
}

var _ Client = (*httpClient)(nil)

func (c *httpClient) Register(ctx context.Context, info *registry.InstanceInfo) (*Response, error) {
	body, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode instance %s: %w", info.ID, err)
	}
	return c.do(ctx, http.MethodPost, "apps/"+url.PathEscape(info.AppName), nil, body)
}

func (c *httpClient) Cancel(ctx context.Context, appName, id string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, instancePath(appName, id), nil, nil)
}

func (c *httpClient) SendHeartbeat(ctx context.Context, appName, id string) (*Response, error) {
	return c.do(ctx, http.MethodPut, instancePath(appName, id), nil, nil)
}

func (c *httpClient) StatusUpdate(ctx context.Context, appName, id string, status registry.Status) (*Response, error) {
	query := url.Values{"value": []string{string(status)}}
	return c.do(ctx, http.MethodPut, instancePath(appName, id)+"/status", query, nil)
}

func (c *httpClient) GetApplications(ctx context.Context, regions ...string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "apps/", regionsQuery(regions), nil)
}

func (c *httpClient) GetDelta(ctx context.Context, regions ...string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "apps/delta", regionsQuery(regions), nil)
}

func (c *httpClient) GetVIP(ctx context.Context, vip string, regions ...string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "vips/"+url.PathEscape(vip), regionsQuery(regions), nil)
}

func (c *httpClient) GetSecureVIP(ctx context.Context, svip string, regions ...string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "svips/"+url.PathEscape(svip), regionsQuery(regions), nil)
}

func (c *httpClient) GetInstance(ctx context.Context, appName, id string) (*Response, error) {
	return c.do(ctx, http.MethodGet, instancePath(appName, id), nil, nil)
}

func (c *httpClient) Shutdown() {
	if c.closed.CompareAndSwap(false, true) {
		c.httpClient.CloseIdleConnections()
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client for %s is shut down", c.baseURL)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, target, err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       payload,
	}
	if result.IsRedirect() {
		if location, err := resp.Location(); err == nil {
			result.Location = location
		}
	}
	return result, nil
}

func instancePath(appName, id string) string {
	return "apps/" + url.PathEscape(appName) + "/" + url.PathEscape(id)
}

func regionsQuery(regions []string) url.Values {
	if len(regions) == 0 {
		return nil
	}
	return url.Values{"regions": []string{strings.Join(regions, ",")}}
}
