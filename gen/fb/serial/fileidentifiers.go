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

package serial

// KEEP THESE IN SYNC WITH .fbs FILES!

const TreeNodeFileID = "LTND"
const CommitFileID = "LCMT"
const ObjectIndexFileID = "LIDX"
const MessageFileID = "LP2P"

// GetFileID returns the file identifier of a finished flatbuffer, or the
// empty string if |bs| is too short to carry one.
func GetFileID(bs []byte) string {
	if len(bs) < 8 {
		return ""
	}
	return string(bs[4:8])
}
