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

package internal

import (
	"hash/maphash"
	"math/rand"
)

// NewRand returns a properly seeded *rand.Rand. The seed is computed using
// the "hash/maphash" package, which can be used concurrently and is
// lock-free. Effectively, we're using the runtime's internal per-thread
// RNG to seed a new rand.Rand.
//
// The returned value is not thread-safe. Components that need jitter from
// multiple goroutines must guard it or create one per goroutine.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(randomSeed())) //nolint:gosec // don't need cryptographic RNG
}

// NewSeededRand returns a *rand.Rand with a caller-provided seed. Used
// where a stable order across process restarts on the same host matters,
// such as the endpoint shuffle keyed by the local IP.
func NewSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed)) //nolint:gosec // don't need cryptographic RNG
}

// randomSeed generates a high-quality (random) seed that can be used to
// create new instances of *rand.Rand, while avoiding the global rand's
// synchronization overhead.
func randomSeed() int64 {
	var hash maphash.Hash
	return int64(hash.Sum64())
}
