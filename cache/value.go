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

package cache

import (
	"bytes"
	"compress/gzip"
)

// Value stores one payload in both plain and gzipped form. Both fields
// are immutable after construction; the gzipped form is computed eagerly
// for non-empty payloads, since almost every reader asks for it.
type Value struct {
	payload []byte
	gzipped []byte
}

// NewValue wraps a payload, compressing it once. Empty payloads carry no
// gzipped form.
func NewValue(payload []byte) *Value {
	value := &Value{payload: payload}
	if len(payload) == 0 {
		return value
	}
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(payload); err != nil {
		return value
	}
	if err := writer.Close(); err != nil {
		return value
	}
	value.gzipped = buf.Bytes()
	return value
}

// Payload returns the plain payload bytes.
func (v *Value) Payload() []byte {
	return v.payload
}

// Gzipped returns the compressed payload, or nil for empty payloads.
func (v *Value) Gzipped() []byte {
	return v.gzipped
}
