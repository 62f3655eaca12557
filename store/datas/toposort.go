// Copyright 2026 Dolthub, Inc.
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

package datas

import (
	"sort"
)

// TopologicallySortCommits orders |commits| so that every commit comes after
// those of its parents that are in the list. A commit's generation is above
// all of its parents', so sorting by generation is enough; IDs break ties to
// keep the order stable across devices.
func TopologicallySortCommits(commits []*Commit) []*Commit {
	out := make([]*Commit, len(commits))
	copy(out, commits)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].ID.Less(out[j].ID)
	})
	return out
}
