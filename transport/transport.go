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

// Package transport implements the discovery HTTP client and the decorator
// stack layered over it: redirect following with endpoint pinning, ordered
// retry with failure quarantine, and session-bounded reconnection. The
// layers compose statically; each decorator owns the client it currently
// delegates to and closes it on replacement or shutdown.
package transport

import (
	"context"
	"net/http"
	"net/url"

	"github.com/beaconlabs/beacon/endpoint"
	"github.com/beaconlabs/beacon/registry"
)

// RequestKind identifies the operation a request performs. The status
// evaluator uses it to distinguish write requests (registration-family)
// from reads when classifying response codes.
type RequestKind int

const (
	KindRegister RequestKind = iota
	KindCancel
	KindSendHeartbeat
	KindStatusUpdate
	KindGetApplications
	KindGetDelta
	KindGetVIP
	KindGetSecureVIP
	KindGetInstance
)

// IsWrite reports whether the request mutates registry state.
func (k RequestKind) IsWrite() bool {
	switch k {
	case KindRegister, KindCancel, KindSendHeartbeat, KindStatusUpdate:
		return true
	default:
		return false
	}
}

func (k RequestKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindCancel:
		return "cancel"
	case KindSendHeartbeat:
		return "sendHeartbeat"
	case KindStatusUpdate:
		return "statusUpdate"
	case KindGetApplications:
		return "getApplications"
	case KindGetDelta:
		return "getDelta"
	case KindGetVIP:
		return "getVip"
	case KindGetSecureVIP:
		return "getSecureVip"
	case KindGetInstance:
		return "getInstance"
	default:
		return "unknown"
	}
}

// Response is the uniform result of any client operation. Location is set
// iff the status code is a redirect (301, 302, 307, 308) and the server
// supplied a Location header.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Location   *url.URL
}

// IsRedirect reports whether the response asks the client to go
// elsewhere.
func (r *Response) IsRedirect() bool {
	switch r.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// Client is the uniform set of discovery request operations. Decorators
// implement it by wrapping another Client (or a factory of them).
type Client interface {
	Register(ctx context.Context, info *registry.InstanceInfo) (*Response, error)
	Cancel(ctx context.Context, appName, id string) (*Response, error)
	SendHeartbeat(ctx context.Context, appName, id string) (*Response, error)
	StatusUpdate(ctx context.Context, appName, id string, status registry.Status) (*Response, error)
	GetApplications(ctx context.Context, regions ...string) (*Response, error)
	GetDelta(ctx context.Context, regions ...string) (*Response, error)
	GetVIP(ctx context.Context, vip string, regions ...string) (*Response, error)
	GetSecureVIP(ctx context.Context, svip string, regions ...string) (*Response, error)
	GetInstance(ctx context.Context, appName, id string) (*Response, error)

	// Shutdown releases the underlying resources. It is idempotent and
	// lets in-flight calls complete best-effort. The wire-level client
	// rejects calls made after Shutdown; the decorators release their
	// current delegate and build a new one if called again.
	Shutdown()
}

// Factory builds clients bound to a specific endpoint.
type Factory interface {
	NewClient(target endpoint.Endpoint) Client
	Shutdown()
}

// ClientFactory builds clients that pick their own targets, e.g. through
// a resolver.
type ClientFactory interface {
	NewClient() Client
	Shutdown()
}

// request is one operation flowing through the decorator stack: its kind,
// and a closure that replays it against any underlying client.
type request struct {
	kind RequestKind
	do   func(ctx context.Context, client Client) (*Response, error)
}

// executor is the single method a decorator implements; the embedded
// decorator type fans the Client operations into it.
type executor interface {
	execute(ctx context.Context, req request) (*Response, error)
}

// decorator adapts an executor to the full Client surface.
type decorator struct {
	exec executor
}

func (d decorator) Register(ctx context.Context, info *registry.InstanceInfo) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindRegister, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.Register(ctx, info)
	}})
}

func (d decorator) Cancel(ctx context.Context, appName, id string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindCancel, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.Cancel(ctx, appName, id)
	}})
}

func (d decorator) SendHeartbeat(ctx context.Context, appName, id string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindSendHeartbeat, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.SendHeartbeat(ctx, appName, id)
	}})
}

func (d decorator) StatusUpdate(ctx context.Context, appName, id string, status registry.Status) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindStatusUpdate, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.StatusUpdate(ctx, appName, id, status)
	}})
}

func (d decorator) GetApplications(ctx context.Context, regions ...string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindGetApplications, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.GetApplications(ctx, regions...)
	}})
}

func (d decorator) GetDelta(ctx context.Context, regions ...string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindGetDelta, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.GetDelta(ctx, regions...)
	}})
}

func (d decorator) GetVIP(ctx context.Context, vip string, regions ...string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindGetVIP, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.GetVIP(ctx, vip, regions...)
	}})
}

func (d decorator) GetSecureVIP(ctx context.Context, svip string, regions ...string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindGetSecureVIP, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.GetSecureVIP(ctx, svip, regions...)
	}})
}

func (d decorator) GetInstance(ctx context.Context, appName, id string) (*Response, error) {
	return d.exec.execute(ctx, request{kind: KindGetInstance, do: func(ctx context.Context, c Client) (*Response, error) {
		return c.GetInstance(ctx, appName, id)
	}})
}

// shutdownClient closes a possibly-nil client.
func shutdownClient(client Client) {
	if client != nil {
		client.Shutdown()
	}
}
