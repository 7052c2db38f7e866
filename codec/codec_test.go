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

package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/beacon/registry"
)

func sampleApps() *registry.Applications {
	apps := registry.NewApplications()
	apps.Version = 7
	app := registry.NewApplication("SEARCH")
	app.AddInstance(&registry.InstanceInfo{
		ID: "i-1", AppName: "SEARCH", HostName: "search-1", IPAddr: "10.0.0.1",
		Port: 8080, Status: registry.StatusUp,
		Metadata: map[string]string{"build": "1234"},
	})
	apps.AddApplication(app)
	apps.SetAppsHashCode(apps.ReconcileHash())
	return apps
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	encoder := EncoderFor(JSON, AcceptFull)
	payload, err := encoder.EncodeApplications(sampleApps())
	require.NoError(t, err)

	decoded, err := DecodeApplications(payload, JSON)
	require.NoError(t, err)
	require.Len(t, decoded.RegisteredApplications(), 1)
	assert.Equal(t, "UP_1_", decoded.AppsHashCode)
	assert.EqualValues(t, 7, decoded.Version)

	info := decoded.Application("SEARCH").ByInstanceID("i-1")
	require.NotNil(t, info)
	assert.Equal(t, "search-1", info.HostName)
	assert.Equal(t, "1234", info.Metadata["build"])
}

func TestCompactStripsMetadata(t *testing.T) {
	t.Parallel()

	payload, err := EncoderFor(JSON, AcceptCompact).EncodeApplications(sampleApps())
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "1234")

	decoded, err := DecodeApplications(payload, JSON)
	require.NoError(t, err)
	info := decoded.Application("SEARCH").ByInstanceID("i-1")
	require.NotNil(t, info)
	assert.Nil(t, info.Metadata)
	assert.Equal(t, "search-1", info.HostName, "identity fields survive compaction")
}

func TestXMLEncoding(t *testing.T) {
	t.Parallel()

	payload, err := EncoderFor(XML, AcceptFull).EncodeApplications(sampleApps())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "<applications>"))

	decoded, err := DecodeApplications(payload, XML)
	require.NoError(t, err)
	require.NotNil(t, decoded.Application("SEARCH"))
}

func TestEncodeSingleApplication(t *testing.T) {
	t.Parallel()

	app := sampleApps().Application("SEARCH")
	payload, err := EncoderFor(JSON, AcceptFull).EncodeApplication(app)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"SEARCH"`)
}

func TestDecodeRejectsUnknownContentType(t *testing.T) {
	t.Parallel()

	_, err := DecodeApplications([]byte("{}"), ContentType("text/plain"))
	require.Error(t, err)
}
