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
	"sync"
	"sync/atomic"

	"github.com/beaconlabs/beacon/internal"
)

// Application is a named group of instances. The canonical instance set is
// what the registry reported; Instances returns the published shuffled
// snapshot when one exists, so clients iterate replicas in a spread-out
// order without mutating the canonical data.
type Application struct {
	Name string `json:"name" xml:"name"`

	mu        sync.Mutex
	instances []*InstanceInfo
	byID      map[string]*InstanceInfo

	shuffled atomic.Pointer[[]*InstanceInfo]
}

// NewApplication creates an empty application.
func NewApplication(name string) *Application {
	return &Application{
		Name: name,
		byID: map[string]*InstanceInfo{},
	}
}

// AddInstance adds or replaces the instance with the same ID.
func (a *Application) AddInstance(info *InstanceInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byID[info.ID]; exists {
		for i, existing := range a.instances {
			if existing.ID == info.ID {
				a.instances[i] = info
				break
			}
		}
	} else {
		a.instances = append(a.instances, info)
	}
	a.byID[info.ID] = info
}

// RemoveInstance removes the instance with the given ID, if present.
func (a *Application) RemoveInstance(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byID[id]; !exists {
		return
	}
	delete(a.byID, id)
	for i, existing := range a.instances {
		if existing.ID == id {
			a.instances = append(a.instances[:i], a.instances[i+1:]...)
			break
		}
	}
}

// Instances returns the published shuffled snapshot, or a copy of the
// canonical instance list if no shuffle has been stored yet.
func (a *Application) Instances() []*InstanceInfo {
	if snapshot := a.shuffled.Load(); snapshot != nil {
		return *snapshot
	}
	return a.InstancesAsIs()
}

// InstancesAsIs returns a copy of the canonical, unshuffled and
// unfiltered instance list as reported by the registry.
func (a *Application) InstancesAsIs() []*InstanceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*InstanceInfo(nil), a.instances...)
}

// ByInstanceID returns the instance with the given ID, or nil.
func (a *Application) ByInstanceID(id string) *InstanceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byID[id]
}

// Size returns the canonical instance count.
func (a *Application) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

// ShuffleAndStoreInstances publishes a shuffled snapshot of the instance
// list. When filterUp is set, instances that are not UP are dropped from
// the snapshot; the canonical list is never modified, so holders of
// InstancesAsIs results are unaffected.
func (a *Application) ShuffleAndStoreInstances(filterUp bool) {
	instances := a.InstancesAsIs()
	if filterUp {
		filtered := instances[:0]
		for _, info := range instances {
			if info.Status == StatusUp {
				filtered = append(filtered, info)
			}
		}
		instances = filtered
	}
	rnd := internal.NewRand()
	rnd.Shuffle(len(instances), func(i, j int) {
		instances[i], instances[j] = instances[j], instances[i]
	})
	a.shuffled.Store(&instances)
}
