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
	"hash/fnv"
	"net"
	"strings"
	"sync"

	"github.com/beaconlabs/beacon/internal"
)

// SplitByZone partitions endpoints into those in myZone and the rest,
// preserving input order within each part. An empty myZone means no
// endpoint is considered local.
func SplitByZone(endpoints []Endpoint, myZone string) (local, other []Endpoint) {
	if len(endpoints) == 0 {
		return nil, nil
	}
	if myZone == "" {
		return nil, append([]Endpoint(nil), endpoints...)
	}
	for _, e := range endpoints {
		if strings.EqualFold(e.Zone, myZone) {
			local = append(local, e)
		} else {
			other = append(other, e)
		}
	}
	return local, other
}

// Randomize returns a copy of the list shuffled with a seed derived from
// the local IPv4 address. Across hosts this spreads load over the cluster;
// on a single host the order is stable, so incremental fetches keep
// hitting the same eventually-consistent server.
func Randomize(list []Endpoint) []Endpoint {
	shuffled := append([]Endpoint(nil), list...)
	if len(shuffled) < 2 {
		return shuffled
	}
	rnd := internal.NewSeededRand(localIPv4Seed())
	rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// Identical reports whether the two lists hold the same endpoints,
// ignoring order.
func Identical(first, second []Endpoint) bool {
	if len(first) != len(second) {
		return false
	}
	firstSet := make(map[Endpoint]struct{}, len(first))
	for _, e := range first {
		firstSet[e] = struct{}{}
	}
	secondSet := make(map[Endpoint]struct{}, len(second))
	for _, e := range second {
		if _, ok := firstSet[e]; !ok {
			return false
		}
		secondSet[e] = struct{}{}
	}
	return len(secondSet) == len(firstSet)
}

var localIPv4Seed = sync.OnceValue(func() int64 {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(localIPv4()))
	return int64(hash.Sum64())
})

func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
