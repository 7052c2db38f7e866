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

// Package registry holds the application and instance snapshot model that
// flows between the registry store, the response cache, and the
// registry-backed resolvers. The registry store itself lives elsewhere;
// this package only models its snapshots and deltas.
package registry

import (
	"sort"
	"strings"
)

// Status is the lifecycle status an instance reports.
type Status string

const (
	StatusUp           Status = "UP"
	StatusDown         Status = "DOWN"
	StatusStarting     Status = "STARTING"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusUnknown      Status = "UNKNOWN"
)

// InstanceInfo describes one registered service instance.
type InstanceInfo struct {
	ID               string            `json:"instanceId" xml:"instanceId"`
	AppName          string            `json:"app" xml:"app"`
	HostName         string            `json:"hostName" xml:"hostName"`
	IPAddr           string            `json:"ipAddr" xml:"ipAddr"`
	Port             int               `json:"port" xml:"port"`
	SecurePort       int               `json:"securePort" xml:"securePort"`
	VIPAddress       string            `json:"vipAddress,omitempty" xml:"vipAddress,omitempty"`
	SecureVIPAddress string            `json:"secureVipAddress,omitempty" xml:"secureVipAddress,omitempty"`
	Status           Status            `json:"status" xml:"status"`
	Zone             string            `json:"zone,omitempty" xml:"zone,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty" xml:"-"`
}

// VIPAddresses splits the instance's (possibly comma-separated) VIP
// address list. Secure selects the secure list.
func (i *InstanceInfo) VIPAddresses(secure bool) []string {
	raw := i.VIPAddress
	if secure {
		raw = i.SecureVIPAddress
	}
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// ServesVIP reports whether the instance is registered under the given
// VIP address. The address list is comma-split, sorted, and searched, so
// instances registered under several VIPs match each of them.
func (i *InstanceInfo) ServesVIP(name string, secure bool) bool {
	addresses := i.VIPAddresses(secure)
	if len(addresses) == 0 {
		return false
	}
	sort.Strings(addresses)
	idx := sort.SearchStrings(addresses, name)
	return idx < len(addresses) && addresses[idx] == name
}
