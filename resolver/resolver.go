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

// Package resolver turns configuration and registry data into ranked
// server endpoint lists. Resolvers compose: a leaf resolver produces
// endpoints, a zone-affinity resolver reorders them, and an async resolver
// caches them with periodic background refresh. Callers assume Endpoints
// is cheap; anything slow belongs behind the async layer.
package resolver

import "github.com/beaconlabs/beacon/endpoint"

// Resolver produces the current ranked endpoint list for a cluster. List
// order encodes preference: the head is the first server to try.
type Resolver interface {
	// Region returns the region this resolver serves.
	Region() string
	// Endpoints returns the current endpoint list. Implementations are
	// free to cache; callers assume the call is cheap.
	Endpoints() []endpoint.Endpoint
}

// Closable is a resolver owning background resources.
type Closable interface {
	Resolver
	// Shutdown stops background work and releases delegate resources.
	// It is idempotent.
	Shutdown()
}

// WrapClosable adapts a plain resolver to the Closable interface with a
// no-op Shutdown. Resolvers that already are Closable are returned as is.
func WrapClosable(res Resolver) Closable {
	if closable, ok := res.(Closable); ok {
		return closable
	}
	return nopClosable{res}
}

type nopClosable struct {
	Resolver
}

func (nopClosable) Shutdown() {}
