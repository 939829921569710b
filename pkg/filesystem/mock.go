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

package filesystem

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileSystem is an in-memory implementation of the Service interface.
// Per-method Func fields override the default behavior; FailureRate and
// DelayRange inject flaky-disk behavior for resilience tests.
type MockFileSystem struct {
	FailureRate      float64 // 0.0 to 1.0
	DelayRange       time.Duration
	FailedOperations map[string]bool

	ReadFileFunc        func(ctx context.Context, path string) ([]byte, error)
	WriteFileFunc       func(ctx context.Context, path string, data []byte, perm os.FileMode) error
	PathExistsFunc      func(ctx context.Context, path string) (bool, error)
	EnsureDirectoryFunc func(ctx context.Context, path string) error
	RemoveFunc          func(ctx context.Context, path string) error
	RemoveAllFunc       func(ctx context.Context, path string) error
	StatFunc            func(ctx context.Context, path string) (os.FileInfo, error)
	ReadDirFunc         func(ctx context.Context, path string) ([]os.DirEntry, error)
	RenameFunc          func(ctx context.Context, oldPath, newPath string) error

	files map[string][]byte
	dirs  map[string]bool
	mutex sync.Mutex
}

// NewMockFileSystem creates a new MockFileSystem instance.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		FailureRate:      0.0,
		DelayRange:       0,
		FailedOperations: make(map[string]bool),
		files:            make(map[string][]byte),
		dirs:             make(map[string]bool),
	}
}

// WithFailureRate sets the failure rate for the mock.
func (m *MockFileSystem) WithFailureRate(rate float64) *MockFileSystem {
	m.FailureRate = rate

	return m
}

// WithDelayRange sets the delay range for the mock.
func (m *MockFileSystem) WithDelayRange(delay time.Duration) *MockFileSystem {
	m.DelayRange = delay

	return m
}

// Seed stores file content directly in the in-memory store.
func (m *MockFileSystem) Seed(path string, data []byte) *MockFileSystem {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.files[path] = append([]byte(nil), data...)

	return m
}

// Content returns the stored content of a file, if any.
func (m *MockFileSystem) Content(path string) ([]byte, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.files[path]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), data...), true
}

// simulateRandomBehavior decides whether an operation should fail and how long it should delay.
func (m *MockFileSystem) simulateRandomBehavior(operation string) (bool, time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.FailedOperations == nil {
		m.FailedOperations = make(map[string]bool)
	}

	shouldFail := rand.Float64() < m.FailureRate
	if shouldFail {
		m.FailedOperations[operation] = true
	}

	delay := time.Duration(0)
	if m.DelayRange > 0 {
		delay = time.Duration(rand.Int63n(int64(m.DelayRange)))
	}

	return shouldFail, delay
}

// prepare applies the simulated delay and failure for one operation.
func (m *MockFileSystem) prepare(ctx context.Context, operation string) error {
	shouldFail, delay := m.simulateRandomBehavior(operation)

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if shouldFail {
		return errors.New("simulated failure in " + operation)
	}

	return nil
}

func notExist(op, path string) error {
	return &os.PathError{Op: op, Path: path, Err: os.ErrNotExist}
}

// EnsureDirectory creates a directory if it doesn't exist.
func (m *MockFileSystem) EnsureDirectory(ctx context.Context, path string) error {
	if m.EnsureDirectoryFunc != nil {
		return m.EnsureDirectoryFunc(ctx, path)
	}

	if err := m.prepare(ctx, "EnsureDirectory:"+path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.dirs[path] = true

	return nil
}

// ReadFile reads a file's contents respecting the context.
func (m *MockFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, path)
	}

	if err := m.prepare(ctx, "ReadFile:"+path); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.files[path]
	if !ok {
		return nil, notExist("open", path)
	}

	return append([]byte(nil), data...), nil
}

// WriteFile writes data to a file respecting the context.
func (m *MockFileSystem) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, path, data, perm)
	}

	if err := m.prepare(ctx, "WriteFile:"+path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.files[path] = append([]byte(nil), data...)

	return nil
}

// PathExists checks if a path exists.
func (m *MockFileSystem) PathExists(ctx context.Context, path string) (bool, error) {
	if m.PathExistsFunc != nil {
		return m.PathExistsFunc(ctx, path)
	}

	if err := m.prepare(ctx, "PathExists:"+path); err != nil {
		return false, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.files[path]; ok {
		return true, nil
	}

	return m.dirs[path], nil
}

// Remove removes a file or directory.
func (m *MockFileSystem) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}

	if err := m.prepare(ctx, "Remove:"+path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.files[path]; ok {
		delete(m.files, path)

		return nil
	}

	if m.dirs[path] {
		delete(m.dirs, path)

		return nil
	}

	return notExist("remove", path)
}

// RemoveAll removes a directory and all its contents.
func (m *MockFileSystem) RemoveAll(ctx context.Context, path string) error {
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx, path)
	}

	if err := m.prepare(ctx, "RemoveAll:"+path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.files, path)
	delete(m.dirs, path)

	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(m.dirs, p)
		}
	}

	return nil
}

// Stat returns file info.
func (m *MockFileSystem) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(ctx, path)
	}

	if err := m.prepare(ctx, "Stat:"+path); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if data, ok := m.files[path]; ok {
		return mockFileInfo{name: baseName(path), size: int64(len(data))}, nil
	}

	if m.dirs[path] {
		return mockFileInfo{name: baseName(path), dir: true}, nil
	}

	return nil, notExist("stat", path)
}

// ReadDir reads a directory, returning all its directory entries.
func (m *MockFileSystem) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(ctx, path)
	}

	if err := m.prepare(ctx, "ReadDir:"+path); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	prefix := strings.TrimSuffix(path, "/") + "/"
	names := make(map[string]bool)

	for p := range m.files {
		if rest, ok := strings.CutPrefix(p, prefix); ok && !strings.Contains(rest, "/") {
			names[rest] = false
		}
	}
	for p := range m.dirs {
		if rest, ok := strings.CutPrefix(p, prefix); ok && !strings.Contains(rest, "/") {
			names[rest] = true
		}
	}

	entries := make([]os.DirEntry, 0, len(names))
	for name, dir := range names {
		entries = append(entries, mockDirEntry{name: name, dir: dir})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	return entries, nil
}

// Rename renames (moves) a file from oldPath to newPath.
func (m *MockFileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, oldPath, newPath)
	}

	if err := m.prepare(ctx, "Rename:"+oldPath); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.files[oldPath]
	if !ok {
		return notExist("rename", oldPath)
	}

	delete(m.files, oldPath)
	m.files[newPath] = data

	return nil
}

// WithReadFileFunc sets a custom ReadFile behavior.
func (m *MockFileSystem) WithReadFileFunc(fn func(ctx context.Context, path string) ([]byte, error)) *MockFileSystem {
	m.ReadFileFunc = fn

	return m
}

// WithWriteFileFunc sets a custom WriteFile behavior.
func (m *MockFileSystem) WithWriteFileFunc(fn func(ctx context.Context, path string, data []byte, perm os.FileMode) error) *MockFileSystem {
	m.WriteFileFunc = fn

	return m
}

// WithPathExistsFunc sets a custom PathExists behavior.
func (m *MockFileSystem) WithPathExistsFunc(fn func(ctx context.Context, path string) (bool, error)) *MockFileSystem {
	m.PathExistsFunc = fn

	return m
}

// WithEnsureDirectoryFunc sets a custom EnsureDirectory behavior.
func (m *MockFileSystem) WithEnsureDirectoryFunc(fn func(ctx context.Context, path string) error) *MockFileSystem {
	m.EnsureDirectoryFunc = fn

	return m
}

// WithRemoveFunc sets a custom Remove behavior.
func (m *MockFileSystem) WithRemoveFunc(fn func(ctx context.Context, path string) error) *MockFileSystem {
	m.RemoveFunc = fn

	return m
}

// WithRemoveAllFunc sets a custom RemoveAll behavior.
func (m *MockFileSystem) WithRemoveAllFunc(fn func(ctx context.Context, path string) error) *MockFileSystem {
	m.RemoveAllFunc = fn

	return m
}

// WithStatFunc sets a custom Stat behavior.
func (m *MockFileSystem) WithStatFunc(fn func(ctx context.Context, path string) (os.FileInfo, error)) *MockFileSystem {
	m.StatFunc = fn

	return m
}

// WithReadDirFunc sets a custom ReadDir behavior.
func (m *MockFileSystem) WithReadDirFunc(fn func(ctx context.Context, path string) ([]os.DirEntry, error)) *MockFileSystem {
	m.ReadDirFunc = fn

	return m
}

// WithRenameFunc sets a custom Rename behavior.
func (m *MockFileSystem) WithRenameFunc(fn func(ctx context.Context, oldPath, newPath string) error) *MockFileSystem {
	m.RenameFunc = fn

	return m
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}

	return path
}

// mockFileInfo is the os.FileInfo returned by the in-memory store.
type mockFileInfo struct {
	name string
	size int64
	dir  bool
}

func (fi mockFileInfo) Name() string { return fi.name }
func (fi mockFileInfo) Size() int64  { return fi.size }
func (fi mockFileInfo) Mode() os.FileMode {
	if fi.dir {
		return os.ModeDir | 0755
	}

	return 0644
}
func (fi mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi mockFileInfo) IsDir() bool        { return fi.dir }
func (fi mockFileInfo) Sys() interface{}   { return nil }

// mockDirEntry is the os.DirEntry returned by the in-memory store.
type mockDirEntry struct {
	name string
	dir  bool
}

func (de mockDirEntry) Name() string { return de.name }
func (de mockDirEntry) IsDir() bool  { return de.dir }
func (de mockDirEntry) Type() os.FileMode {
	if de.dir {
		return os.ModeDir
	}

	return 0
}
func (de mockDirEntry) Info() (os.FileInfo, error) {
	return mockFileInfo{name: de.name, dir: de.dir}, nil
}
