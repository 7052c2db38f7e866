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

// Package config holds the client, transport, and server configuration
// recognized by the discovery core, loadable from a YAML file. Interval
// options keep their wire units (milliseconds or seconds) in the file
// format; accessor methods convert to time.Duration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Client configures the discovery client side.
type Client struct {
	// Region is the local region.
	Region string `yaml:"region"`
	// AvailabilityZones maps a region to its zones, in preference order.
	AvailabilityZones map[string][]string `yaml:"availabilityZones"`
	// ServiceURLs maps a zone to the discovery service URLs in it.
	ServiceURLs map[string][]string `yaml:"serviceUrls"`
	// ShouldFetchRegistry enables registry fetching; the composite
	// bootstrap strategy requires it.
	ShouldFetchRegistry bool `yaml:"shouldFetchRegistry"`
	// FilterOnlyUpInstances drops non-UP instances from published
	// application snapshots.
	FilterOnlyUpInstances bool `yaml:"filterOnlyUpInstances"`
	// ServiceURLPollIntervalSeconds is the bootstrap resolver refresh
	// period.
	ServiceURLPollIntervalSeconds int `yaml:"serviceUrlPollIntervalSeconds"`
}

// ZonesForRegion returns the configured zones of a region.
func (c *Client) ZonesForRegion(region string) []string {
	return c.AvailabilityZones[region]
}

// LocalZone elects the zone of this client: the instance's own zone when
// known, otherwise the first configured zone of the local region.
func (c *Client) LocalZone(instanceZone string) string {
	if instanceZone != "" {
		return instanceZone
	}
	if zones := c.AvailabilityZones[c.Region]; len(zones) > 0 {
		return zones[0]
	}
	return ""
}

// ServiceURLPollInterval returns the bootstrap refresh period.
func (c *Client) ServiceURLPollInterval() time.Duration {
	return time.Duration(c.ServiceURLPollIntervalSeconds) * time.Second
}

// Transport configures the HTTP client decorator stack.
type Transport struct {
	// UseBootstrapResolverForQuery shares the bootstrap resolver for
	// query clients instead of building a composite query resolver.
	UseBootstrapResolverForQuery bool `yaml:"useBootstrapResolverForQuery"`
	// BootstrapResolverStrategy selects the bootstrap resolver;
	// "composite" enables the vip-based hierarchy.
	BootstrapResolverStrategy string `yaml:"bootstrapResolverStrategy"`
	// BootstrapFailFast makes client construction fail when the warm-up
	// resolution is empty.
	BootstrapFailFast bool `yaml:"bootstrapFailFast"`
	// AsyncExecutorThreadPoolSize is loaded but not consulted: each async
	// resolver runs its own single refresh goroutine.
	AsyncExecutorThreadPoolSize int `yaml:"asyncExecutorThreadPoolSize"`
	// AsyncResolverRefreshIntervalMs is the async resolver period.
	AsyncResolverRefreshIntervalMs int64 `yaml:"asyncResolverRefreshIntervalMs"`
	// AsyncResolverWarmUpTimeoutMs bounds the warm-up resolution.
	AsyncResolverWarmUpTimeoutMs int64 `yaml:"asyncResolverWarmUpTimeoutMs"`
	// SessionedClientReconnectIntervalSeconds is the base session
	// duration.
	SessionedClientReconnectIntervalSeconds int `yaml:"sessionedClientReconnectIntervalSeconds"`
	// RetryableClientQuarantineRefreshPercentage is the quarantine clear
	// threshold as a fraction of the candidate list.
	RetryableClientQuarantineRefreshPercentage float64 `yaml:"retryableClientQuarantineRefreshPercentage"`
	// ApplicationsResolverUseIP derives endpoints (and the peer self
	// match) from instance IPs instead of hostnames.
	ApplicationsResolverUseIP bool `yaml:"applicationsResolverUseIp"`
	// WriteClusterVIP is the vip under which write-cluster servers
	// register.
	WriteClusterVIP string `yaml:"writeClusterVip"`
	// ReadClusterVIP is the vip under which read-cluster servers
	// register.
	ReadClusterVIP string `yaml:"readClusterVip"`
}

// AsyncResolverRefreshInterval returns the async resolver period.
func (t *Transport) AsyncResolverRefreshInterval() time.Duration {
	return time.Duration(t.AsyncResolverRefreshIntervalMs) * time.Millisecond
}

// AsyncResolverWarmUpTimeout returns the warm-up budget.
func (t *Transport) AsyncResolverWarmUpTimeout() time.Duration {
	return time.Duration(t.AsyncResolverWarmUpTimeoutMs) * time.Millisecond
}

// SessionedClientReconnectInterval returns the base session duration.
func (t *Transport) SessionedClientReconnectInterval() time.Duration {
	return time.Duration(t.SessionedClientReconnectIntervalSeconds) * time.Second
}

// Server configures the server-side cache and peer machinery.
type Server struct {
	// ResponseCacheAutoExpirationInSeconds is the read-write tier TTL.
	ResponseCacheAutoExpirationInSeconds int `yaml:"responseCacheAutoExpirationInSeconds"`
	// ResponseCacheUpdateIntervalMs is the read-only reconciliation
	// period.
	ResponseCacheUpdateIntervalMs int64 `yaml:"responseCacheUpdateIntervalMs"`
	// UseReadOnlyResponseCache enables the read-only tier.
	UseReadOnlyResponseCache bool `yaml:"shouldUseReadOnlyResponseCache"`
	// PeerNodesUpdateIntervalMs is the peer-node reconciliation period.
	PeerNodesUpdateIntervalMs int64 `yaml:"peerNodesUpdateIntervalMs"`
	// PeerReplicationRatePerSecond throttles replication requests to
	// each peer. Zero means unthrottled.
	PeerReplicationRatePerSecond float64 `yaml:"peerReplicationRatePerSecond"`
}

// ResponseCacheAutoExpiration returns the read-write tier TTL.
func (s *Server) ResponseCacheAutoExpiration() time.Duration {
	return time.Duration(s.ResponseCacheAutoExpirationInSeconds) * time.Second
}

// ResponseCacheUpdateInterval returns the reconciliation period.
func (s *Server) ResponseCacheUpdateInterval() time.Duration {
	return time.Duration(s.ResponseCacheUpdateIntervalMs) * time.Millisecond
}

// PeerNodesUpdateInterval returns the peer reconciliation period.
func (s *Server) PeerNodesUpdateInterval() time.Duration {
	return time.Duration(s.PeerNodesUpdateIntervalMs) * time.Millisecond
}

// Config is the full configuration document.
type Config struct {
	Client    Client    `yaml:"client"`
	Transport Transport `yaml:"transport"`
	Server    Server    `yaml:"server"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Client: Client{
			Region:                        "us-east-1",
			FilterOnlyUpInstances:         true,
			ServiceURLPollIntervalSeconds: 300,
		},
		Transport: Transport{
			AsyncExecutorThreadPoolSize:                5,
			AsyncResolverRefreshIntervalMs:             5 * 60 * 1000,
			AsyncResolverWarmUpTimeoutMs:               5000,
			SessionedClientReconnectIntervalSeconds:    20 * 60,
			RetryableClientQuarantineRefreshPercentage: 0.66,
		},
		Server: Server{
			ResponseCacheAutoExpirationInSeconds: 180,
			ResponseCacheUpdateIntervalMs:        30 * 1000,
			UseReadOnlyResponseCache:             true,
			PeerNodesUpdateIntervalMs:            10 * 60 * 1000,
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
