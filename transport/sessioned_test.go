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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/beacon/internal/clocktest"
)

type countingClientFactory struct {
	mu      sync.Mutex
	clients []*scriptedClient
}

func (f *countingClientFactory) NewClient() Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	client := newScriptedClient()
	f.clients = append(f.clients, client)
	return client
}

func (f *countingClientFactory) Shutdown() {}

func (f *countingClientFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func TestSessionRollover(t *testing.T) {
	t.Parallel()

	testClock := clocktest.NewFakeClock()
	factory := &countingClientFactory{}
	client := NewSessionedClient("test", factory, time.Second,
		WithSessionedClock(testClock))

	_, err := client.GetApplications(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, factory.count())

	// Within the session the same delegate is reused.
	_, err = client.GetApplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, factory.count())

	// Past the maximum possible session duration a rollover must occur:
	// the old client is closed and a new one is built.
	testClock.Advance(1500 * time.Millisecond)
	_, err = client.GetApplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, factory.count())
	assert.True(t, factory.clients[0].isShutdown())
	assert.False(t, factory.clients[1].isShutdown())

	session := client.CurrentSessionDuration()
	assert.GreaterOrEqual(t, session, 500*time.Millisecond)
	assert.Less(t, session, 1500*time.Millisecond)
}

func TestSessionJitterRange(t *testing.T) {
	t.Parallel()

	const base = time.Second
	factory := &countingClientFactory{}
	for range 200 {
		client := NewSessionedClient("test", factory, base,
			WithSessionedClock(clocktest.NewFakeClock()))
		session := client.CurrentSessionDuration()
		assert.GreaterOrEqual(t, session, base/2)
		assert.Less(t, session, 3*base/2)
	}
}

func TestSessionedShutdownClosesDelegate(t *testing.T) {
	t.Parallel()

	factory := &countingClientFactory{}
	client := NewSessionedClient("test", factory, time.Minute,
		WithSessionedClock(clocktest.NewFakeClock()))

	_, err := client.GetApplications(context.Background())
	require.NoError(t, err)

	client.Shutdown()
	assert.True(t, factory.clients[0].isShutdown())
	client.Shutdown() // idempotent
}
