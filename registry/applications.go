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

package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Applications is a snapshot of every registered application, as served to
// query clients. The reconcile hash summarizes instance counts by status
// so that full and delta fetches can be checked for drift.
type Applications struct {
	AppsHashCode string `json:"apps__hashcode" xml:"apps__hashcode"`
	Version      int64  `json:"versions__delta" xml:"versions__delta"`

	mu     sync.Mutex
	apps   []*Application
	byName map[string]*Application
}

// NewApplications creates an empty snapshot.
func NewApplications() *Applications {
	return &Applications{byName: map[string]*Application{}}
}

// AddApplication adds an application to the snapshot, replacing any
// previous application with the same name.
func (s *Applications) AddApplication(app *Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[app.Name]; exists {
		for i, existing := range s.apps {
			if existing.Name == app.Name {
				s.apps[i] = app
				break
			}
		}
	} else {
		s.apps = append(s.apps, app)
	}
	s.byName[app.Name] = app
}

// RegisteredApplications returns a copy of the application list.
func (s *Applications) RegisteredApplications() []*Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Application(nil), s.apps...)
}

// Application returns the application with the given name, or nil.
func (s *Applications) Application(name string) *Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byName[name]
}

// Size returns the total instance count across all applications.
func (s *Applications) Size() int {
	total := 0
	for _, app := range s.RegisteredApplications() {
		total += app.Size()
	}
	return total
}

// ReconcileHash computes the status-count summary of the snapshot, in the
// form "STATUS_count_" concatenated over statuses in sorted order.
func (s *Applications) ReconcileHash() string {
	counts := map[Status]int{}
	for _, app := range s.RegisteredApplications() {
		for _, info := range app.InstancesAsIs() {
			counts[info.Status]++
		}
	}
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	hash := ""
	for _, status := range statuses {
		hash += fmt.Sprintf("%s_%d_", status, counts[Status(status)])
	}
	return hash
}

// SetAppsHashCode records the reconcile hash on the snapshot.
func (s *Applications) SetAppsHashCode(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppsHashCode = hash
}

// ShuffleInstances publishes shuffled snapshots for every application.
func (s *Applications) ShuffleInstances(filterUp bool) {
	for _, app := range s.RegisteredApplications() {
		app.ShuffleAndStoreInstances(filterUp)
	}
}
