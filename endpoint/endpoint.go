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

// Package endpoint defines the addressable server endpoint value type and
// the ordering helpers used by the resolver hierarchy. An Endpoint is a
// plain comparable value; lists of endpoints encode preference by order,
// with the head being the first server to try.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint identifies a single discovery server instance.
type Endpoint struct {
	// Host is a hostname or IP address.
	Host string
	// Port is the service port. Zero means the scheme default.
	Port int
	// Secure selects https over http.
	Secure bool
	// PathPrefix is the URL context path of the service, e.g. "/v2/".
	PathPrefix string
	// Region is the region this endpoint serves.
	Region string
	// Zone is the availability zone of the endpoint, if known.
	Zone string
}

// New creates an endpoint from a service URL. The URL's scheme selects
// Secure, and its path becomes the PathPrefix.
func New(serviceURL string) (Endpoint, error) {
	parsed, err := url.Parse(serviceURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse service URL %q: %w", serviceURL, err)
	}
	port := 0
	if p := parsed.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return Endpoint{}, fmt.Errorf("parse service URL %q: bad port: %w", serviceURL, err)
		}
	}
	return Endpoint{
		Host:       parsed.Hostname(),
		Port:       port,
		Secure:     parsed.Scheme == "https",
		PathPrefix: parsed.Path,
	}, nil
}

// ServiceURL renders the endpoint as a URL string. Two endpoints that
// differ only in Region or Zone render identically; full identity is the
// struct value itself.
func (e Endpoint) ServiceURL() string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	hostPort := e.Host
	if e.Port > 0 {
		hostPort = fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
	path := e.PathPrefix
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + hostPort + path
}

func (e Endpoint) String() string {
	return e.ServiceURL()
}

// Compare orders endpoints by their serialized URL. It reports -1, 0, or
// +1 like [strings.Compare].
func (e Endpoint) Compare(other Endpoint) int {
	return strings.Compare(e.ServiceURL(), other.ServiceURL())
}
