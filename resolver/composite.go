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

import "github.com/beaconlabs/beacon/endpoint"

// compositeResolver prefers endpoints derived from the local registry and
// falls through to a remote vip-based resolver when the local source has
// nothing.
type compositeResolver struct {
	region string
	local  Resolver
	remote Resolver
}

// NewCompositeResolver creates a resolver that returns local's endpoints,
// or remote's when local resolves to nothing.
func NewCompositeResolver(region string, local, remote Resolver) Resolver {
	return &compositeResolver{region: region, local: local, remote: remote}
}

func (r *compositeResolver) Region() string {
	return r.region
}

func (r *compositeResolver) Endpoints() []endpoint.Endpoint {
	if result := r.local.Endpoints(); len(result) > 0 {
		return result
	}
	return r.remote.Endpoints()
}
