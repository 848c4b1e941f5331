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

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Snapshot is a serialized copy of an entity value. Keeping snapshots as
// canonical JSON bytes makes rollback and duplicate comparisons exact without
// tying the ledger to any concrete entity type.
type Snapshot []byte

// NewSnapshot serializes v into a Snapshot.
func NewSnapshot(v any) (Snapshot, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Snapshot(b), nil
}

// Equal reports whether two snapshots hold the same serialized value.
func (s Snapshot) Equal(other Snapshot) bool {
	return bytes.Equal(s, other)
}

// IsZero reports whether the snapshot is empty (e.g. the original value of a
// Create operation).
func (s Snapshot) IsZero() bool {
	return len(s) == 0
}

// Decode deserializes the snapshot into the given value.
func (s Snapshot) Decode(into any) error {
	return json.Unmarshal(s, into)
}
