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

// Package safejson wraps goccy/go-json with a stdlib fallback. goccy is
// measurably faster but panics on some exotic inputs; the fallback keeps
// encoding errors recoverable instead of taking the process down.
package safejson

import (
	jsonstd "encoding/json"
	"errors"
	"reflect"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Unmarshal decodes val into decoded, which must be a non-nil pointer.
// Struct targets are decoded into a scratch value first so a goccy panic
// cannot leave the caller's value half-written.
func Unmarshal(val []byte, decoded any) (err error) {
	ptr := reflect.ValueOf(decoded)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return errors.New("decoded must be a non-nil pointer")
	}

	defer func() {
		if r := recover(); r != nil {
			zap.S().Warnf("goccy failed to decode, falling back to stdlib: %v", r)

			err = jsonstd.Unmarshal(val, decoded)
		}
	}()

	if ptr.Elem().Kind() != reflect.Struct {
		return jsonstd.Unmarshal(val, decoded)
	}

	scratch := reflect.New(ptr.Elem().Type()).Interface()

	err = json.Unmarshal(val, scratch)
	if err == nil {
		ptr.Elem().Set(reflect.ValueOf(scratch).Elem())
	}

	return err
}

// Marshal encodes val, falling back to the stdlib encoder if goccy panics.
func Marshal(val any) (encoded []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Warnf("goccy failed to encode, falling back to stdlib: %v", r)

			encoded, err = jsonstd.Marshal(val)
		}
	}()

	encoded, err = json.Marshal(val)

	return encoded, err
}

// MarshalIndent is Marshal with indentation, same fallback behavior.
func MarshalIndent(val any, prefix, indent string) (encoded []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Warnf("goccy failed to encode, falling back to stdlib: %v", r)

			encoded, err = jsonstd.MarshalIndent(val, prefix, indent)
		}
	}()

	encoded, err = json.MarshalIndent(val, prefix, indent)

	return encoded, err
}
