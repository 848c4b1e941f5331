// Copyright 2026 Plateshare Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mutation

import "github.com/cespare/xxhash/v2"

// EntityType identifies what kind of entity a mutation targets, e.g.
// "notification", "review", "saved_item". Values are caller-defined.
type EntityType string

// EntityRef identifies one entity instance.
type EntityRef struct {
	Type EntityType
	ID   string
}

// String renders the ref for logs and event payloads.
func (r EntityRef) String() string {
	return string(r.Type) + "/" + r.ID
}

// Key returns a stable 64-bit key for the entity, used by the ledger to
// index active updates. The NUL separator keeps ("ab","c") and ("a","bc")
// distinct.
func (r EntityRef) Key() uint64 {
	var d xxhash.Digest
	_, _ = d.WriteString(string(r.Type))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(r.ID)
	return d.Sum64()
}
