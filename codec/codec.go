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

// Package codec encodes registry snapshots for the response cache and
// decodes them on the client side. Encoders are selected by content type
// and acceptance level; the compact level strips instance metadata, which
// dominates payload size for large registries.
package codec

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/beaconlabs/beacon/registry"
)

// ContentType selects the wire format.
type ContentType string

const (
	JSON ContentType = "application/json"
	XML  ContentType = "application/xml"
)

// ContentTypes lists every supported content type.
func ContentTypes() []ContentType {
	return []ContentType{JSON, XML}
}

// AcceptLevel selects how much of each instance is serialized.
type AcceptLevel string

const (
	// AcceptFull serializes instances completely.
	AcceptFull AcceptLevel = "full"
	// AcceptCompact strips instance metadata.
	AcceptCompact AcceptLevel = "compact"
)

// AcceptLevels lists every supported acceptance level.
func AcceptLevels() []AcceptLevel {
	return []AcceptLevel{AcceptFull, AcceptCompact}
}

// Encoder serializes registry snapshots.
type Encoder interface {
	ContentType() ContentType
	EncodeApplications(apps *registry.Applications) ([]byte, error)
	EncodeApplication(app *registry.Application) ([]byte, error)
}

// EncoderFor returns the encoder for the given content type and
// acceptance level.
func EncoderFor(contentType ContentType, accept AcceptLevel) Encoder {
	return encoder{contentType: contentType, compact: accept == AcceptCompact}
}

// wireApplication is the serialized form of an application.
type wireApplication struct {
	XMLName  xml.Name                 `json:"-" xml:"application"`
	Name     string                   `json:"name" xml:"name"`
	Instance []*registry.InstanceInfo `json:"instance" xml:"instance"`
}

// wireApplications is the serialized form of a full snapshot.
type wireApplications struct {
	XMLName      xml.Name          `json:"-" xml:"applications"`
	AppsHashCode string            `json:"apps__hashcode" xml:"apps__hashcode"`
	Version      int64             `json:"versions__delta" xml:"versions__delta"`
	Application  []wireApplication `json:"application" xml:"application"`
}

type wireApplicationsDoc struct {
	Applications wireApplications `json:"applications"`
}

type encoder struct {
	contentType ContentType
	compact     bool
}

func (e encoder) ContentType() ContentType {
	return e.contentType
}

func (e encoder) EncodeApplications(apps *registry.Applications) ([]byte, error) {
	wire := wireApplications{
		AppsHashCode: apps.AppsHashCode,
		Version:      apps.Version,
	}
	for _, app := range apps.RegisteredApplications() {
		wire.Application = append(wire.Application, e.wireApp(app))
	}
	if e.contentType == XML {
		return xml.Marshal(wire)
	}
	return json.Marshal(wireApplicationsDoc{Applications: wire})
}

func (e encoder) EncodeApplication(app *registry.Application) ([]byte, error) {
	wire := e.wireApp(app)
	if e.contentType == XML {
		return xml.Marshal(wire)
	}
	return json.Marshal(struct {
		Application wireApplication `json:"application"`
	}{Application: wire})
}

func (e encoder) wireApp(app *registry.Application) wireApplication {
	wire := wireApplication{Name: app.Name}
	for _, info := range app.Instances() {
		if e.compact {
			compacted := *info
			compacted.Metadata = nil
			info = &compacted
		}
		wire.Instance = append(wire.Instance, info)
	}
	return wire
}

// DecodeApplications parses a full snapshot in the given content type.
func DecodeApplications(payload []byte, contentType ContentType) (*registry.Applications, error) {
	var wire wireApplications
	switch contentType {
	case XML:
		if err := xml.Unmarshal(payload, &wire); err != nil {
			return nil, fmt.Errorf("decode applications: %w", err)
		}
	case JSON:
		var doc wireApplicationsDoc
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("decode applications: %w", err)
		}
		wire = doc.Applications
	default:
		return nil, fmt.Errorf("decode applications: unsupported content type %q", contentType)
	}

	apps := registry.NewApplications()
	apps.AppsHashCode = wire.AppsHashCode
	apps.Version = wire.Version
	for _, wireApp := range wire.Application {
		app := registry.NewApplication(wireApp.Name)
		for _, info := range wireApp.Instance {
			app.AddInstance(info)
		}
		apps.AddApplication(app)
	}
	return apps, nil
}
