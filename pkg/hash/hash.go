// Copyright 2025 UMH Systems GmbH
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

// Package hash provides the digest used for API bearer tokens. Tokens are
// never persisted; the config stores only their SHA3-256 hex digest and
// every presented token is hashed before comparison.
package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Sha3Hex returns the lowercase hex SHA3-256 digest of input.
func Sha3Hex(input string) string {
	digest := sha3.Sum256([]byte(input))

	return hex.EncodeToString(digest[:])
}
