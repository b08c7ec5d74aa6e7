/*
 * Copyright 2020-present Open Networking Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package imagehash provides the reference ImageParser used by cmd/fuoctl
// and by tests. spec.md §1 treats hash extraction as an external
// collaborator FUO consumes but does not specify; this is the default
// implementation, grounded on the same ITU I.363.5 CRC the teacher uses
// for image integrity and on moffa90-go-cyacd's parser/checksum split.
package imagehash

import (
	"encoding/binary"
	"fmt"

	"github.com/boguslaw-wojcik/crc32a"
)

// ErrEmptyImage is returned when Parse is given a zero-length blob.
var ErrEmptyImage = fmt.Errorf("image blob is empty")

// Parser extracts a cryptographic identity hash from a firmware image
// blob. Implementations are free to use a real digest (SHA-256, etc);
// the default here uses the same CRC the command clients already carry
// as a dependency, so no additional hashing library is required for a
// minimal deployment.
type Parser interface {
	Parse(data []byte) ([]byte, error)
}

// DefaultParser is the reference Parser: a 4-byte big-endian CRC32/ITU
// I.363.5 digest of the whole blob.
type DefaultParser struct{}

// Parse implements Parser.
func (DefaultParser) Parse(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	sum := crc32a.Checksum(data)
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, sum)
	return out, nil
}
