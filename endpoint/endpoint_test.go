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

package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://disco-1:8080/v2/", Endpoint{Host: "disco-1", Port: 8080, PathPrefix: "/v2/"}.ServiceURL())
	assert.Equal(t, "https://disco-1/v2/", Endpoint{Host: "disco-1", Secure: true, PathPrefix: "v2/"}.ServiceURL())
	assert.Equal(t, "http://10.0.0.7", Endpoint{Host: "10.0.0.7"}.ServiceURL())
}

func TestNewFromServiceURL(t *testing.T) {
	t.Parallel()

	got, err := New("https://disco-1:8443/v2/")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "disco-1", Port: 8443, Secure: true, PathPrefix: "/v2/"}, got)

	got, err = New("http://disco-2/v2/")
	require.NoError(t, err)
	assert.False(t, got.Secure)
	assert.Zero(t, got.Port)
}

func TestCompareOrdersBySerializedURL(t *testing.T) {
	t.Parallel()

	a := Endpoint{Host: "a", Port: 80}
	b := Endpoint{Host: "b", Port: 80}
	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
}

func TestSplitByZone(t *testing.T) {
	t.Parallel()

	endpoints := []Endpoint{
		{Host: "a", Zone: "us-east-1a"},
		{Host: "b", Zone: "us-east-1c"},
		{Host: "c", Zone: "US-EAST-1A"},
		{Host: "d", Zone: "us-east-1d"},
	}

	local, other := SplitByZone(endpoints, "us-east-1a")
	assert.Equal(t, []Endpoint{endpoints[0], endpoints[2]}, local, "zone match is case-insensitive and order-preserving")
	assert.Equal(t, []Endpoint{endpoints[1], endpoints[3]}, other)

	local, other = SplitByZone(endpoints, "")
	assert.Empty(t, local, "no local zone means nothing is local")
	assert.Equal(t, endpoints, other)

	local, other = SplitByZone(nil, "us-east-1a")
	assert.Empty(t, local)
	assert.Empty(t, other)
}

func TestRandomizeIsStablePermutation(t *testing.T) {
	t.Parallel()

	var endpoints []Endpoint
	for _, host := range []string{"a", "b", "c", "d", "e", "f"} {
		endpoints = append(endpoints, Endpoint{Host: host, Port: 80})
	}

	first := Randomize(endpoints)
	second := Randomize(endpoints)
	assert.Equal(t, first, second, "seed is stable per host")
	assert.True(t, Identical(endpoints, first), "shuffle is a permutation")
	assert.NotSame(t, &endpoints[0], &first[0], "input list is not mutated")

	single := Randomize(endpoints[:1])
	assert.Equal(t, endpoints[:1], single)
}

func TestIdentical(t *testing.T) {
	t.Parallel()

	a := []Endpoint{{Host: "a"}, {Host: "b"}}
	b := []Endpoint{{Host: "b"}, {Host: "a"}}
	assert.True(t, Identical(a, b))
	assert.False(t, Identical(a, a[:1]))
	assert.False(t, Identical(a, []Endpoint{{Host: "a"}, {Host: "c"}}))
	assert.True(t, Identical(nil, nil))
}
