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

// Package filesystem wraps the os file operations behind a context-aware
// service so that config reads and writes stay bounded by the caller's
// deadline and can be mocked in tests.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
)

// cachedFileContent is cached file content with the stat metadata used
// for invalidation.
type cachedFileContent struct {
	content   []byte
	modTime   time.Time
	size      int64
	lastCheck time.Time
}

// fileCache provides thread-safe caching for file contents.
type fileCache struct {
	cache map[string]*cachedFileContent
	mu    sync.RWMutex
}

// DefaultService is the default implementation of Service.
type DefaultService struct {
	fileCache fileCache
}

// NewDefaultService creates a new DefaultService.
func NewDefaultService() *DefaultService {
	return &DefaultService{
		fileCache: fileCache{
			cache: make(map[string]*cachedFileContent),
		},
	}
}

// recordOp records filesystem operation metrics.
func (s *DefaultService) recordOp(op string, start time.Time, err error, cached bool) {
	metrics.RecordFilesystemOp(op, err != nil, cached, time.Since(start))
}

// checkContext checks if the context is done before proceeding with an operation.
func (s *DefaultService) checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// cacheableRead reports whether ReadFile results for the path are cached.
func cacheableRead(path string) bool {
	for _, suffix := range constants.FilesystemCacheSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

// EnsureDirectory creates a directory if it doesn't exist.
func (s *DefaultService) EnsureDirectory(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.MkdirAll(path, 0755)
	}()

	select {
	case err := <-errCh:
		s.recordOp("EnsureDirectory", start, err, false)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}

		return nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("EnsureDirectory", start, err, false)

		return err
	}
}

// ReadFile reads a file's contents respecting the context. Reads of
// config files are cached and invalidated by the file's stat, so a
// reconfiguration pass that re-reads an unchanged file stays cheap.
func (s *DefaultService) ReadFile(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	if !cacheableRead(path) {
		return s.readFileUncached(ctx, path, start)
	}

	s.fileCache.mu.RLock()
	var cached cachedFileContent
	entry, exists := s.fileCache.cache[path]
	if exists {
		cached = *entry
	}
	s.fileCache.mu.RUnlock()

	// Stat to check whether the file changed behind the cache.
	stat, err := os.Stat(path)
	if err != nil {
		if exists {
			s.invalidate(path)
		}
		s.recordOp("ReadFile", start, err, false)

		return nil, err
	}

	if exists && cached.modTime.Equal(stat.ModTime()) && cached.size == stat.Size() {
		if time.Since(cached.lastCheck) >= constants.FilesystemCacheRecheckInterval {
			s.fileCache.mu.Lock()
			if entry, ok := s.fileCache.cache[path]; ok {
				entry.lastCheck = time.Now()
			}
			s.fileCache.mu.Unlock()
		}
		s.recordOp("ReadFile", start, nil, true)

		return cached.content, nil
	}

	content, err := s.readFileUncached(ctx, path, start)
	if err != nil {
		return nil, err
	}

	s.fileCache.mu.Lock()
	s.fileCache.cache[path] = &cachedFileContent{
		content:   content,
		modTime:   stat.ModTime(),
		size:      stat.Size(),
		lastCheck: time.Now(),
	}
	s.fileCache.mu.Unlock()

	return content, nil
}

// readFileUncached performs the actual file read without caching.
func (s *DefaultService) readFileUncached(ctx context.Context, path string, start time.Time) ([]byte, error) {
	type result struct {
		err  error
		data []byte
	}

	resCh := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(path)
		resCh <- result{err: err, data: data}
	}()

	select {
	case res := <-resCh:
		s.recordOp("ReadFile", start, res.err, false)
		if res.err != nil {
			return nil, res.err
		}

		if elapsed := time.Since(start); elapsed > constants.FilesystemSlowReadThreshold {
			logger.For(logger.ComponentFilesystem).Debugf("Slow read of %s took %s", path, elapsed)
		}

		return res.data, nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("ReadFile", start, err, false)

		return nil, err
	}
}

// WriteFile writes data to a file respecting the context. A cached read
// for the path is dropped so the next read observes the new content.
func (s *DefaultService) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.WriteFile(path, data, perm)
	}()

	select {
	case err := <-errCh:
		s.recordOp("WriteFile", start, err, false)
		if err != nil {
			return fmt.Errorf("failed to write file %s: %w", path, err)
		}

		s.invalidate(path)

		return nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("WriteFile", start, err, false)

		return err
	}
}

// invalidate drops a cached read for the path.
func (s *DefaultService) invalidate(path string) {
	s.fileCache.mu.Lock()
	delete(s.fileCache.cache, path)
	s.fileCache.mu.Unlock()
}

// PathExists checks if a path (file or directory) exists.
func (s *DefaultService) PathExists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return false, err
	}

	type result struct {
		err    error
		exists bool
	}

	resCh := make(chan result, 1)

	go func() {
		// Use Lstat to handle symlinks properly (don't follow them)
		_, err := os.Lstat(path)
		if os.IsNotExist(err) {
			resCh <- result{err: nil, exists: false}

			return
		}
		if err != nil {
			resCh <- result{err: fmt.Errorf("failed to check if path exists: %w", err), exists: false}

			return
		}
		resCh <- result{err: nil, exists: true}
	}()

	select {
	case res := <-resCh:
		s.recordOp("PathExists", start, res.err, false)
		if res.err != nil {
			return false, res.err
		}

		return res.exists, nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("PathExists", start, err, false)

		return false, err
	}
}

// Remove removes a file or directory.
func (s *DefaultService) Remove(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.Remove(path)
	}()

	select {
	case err := <-errCh:
		s.recordOp("Remove", start, err, false)
		if err == nil {
			s.invalidate(path)
		}

		return err
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("Remove", start, err, false)

		return err
	}
}

// RemoveAll removes a directory and all its contents.
func (s *DefaultService) RemoveAll(ctx context.Context, path string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.RemoveAll(path)
	}()

	select {
	case err := <-errCh:
		s.recordOp("RemoveAll", start, err, false)
		if err != nil {
			return fmt.Errorf("failed to remove directory %s: %w", path, err)
		}

		return nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("RemoveAll", start, err, false)

		return err
	}
}

// Stat returns file info.
func (s *DefaultService) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		info os.FileInfo
		err  error
	}

	resCh := make(chan result, 1)

	go func() {
		info, err := os.Stat(path)
		resCh <- result{info, err}
	}()

	select {
	case res := <-resCh:
		s.recordOp("Stat", start, res.err, false)
		if res.err != nil {
			return nil, fmt.Errorf("failed to get file info: %w", res.err)
		}

		return res.info, nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("Stat", start, err, false)

		return nil, err
	}
}

// ReadDir reads a directory, returning all its directory entries.
func (s *DefaultService) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		err     error
		entries []os.DirEntry
	}

	resCh := make(chan result, 1)

	go func() {
		entries, err := os.ReadDir(path)
		resCh <- result{err: err, entries: entries}
	}()

	select {
	case res := <-resCh:
		s.recordOp("ReadDir", start, res.err, false)
		if res.err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", path, res.err)
		}

		return res.entries, nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("ReadDir", start, err, false)

		return nil, err
	}
}

// Rename renames (moves) a file or directory from oldPath to newPath.
// This operation is atomic on the same filesystem mount.
func (s *DefaultService) Rename(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	if err := s.checkContext(ctx); err != nil {
		return fmt.Errorf("failed to check context: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- os.Rename(oldPath, newPath)
	}()

	select {
	case err := <-errCh:
		s.recordOp("Rename", start, err, false)
		if err != nil {
			return fmt.Errorf("failed to rename file %s to %s: %w", oldPath, newPath, err)
		}

		s.invalidate(oldPath)
		s.invalidate(newPath)

		return nil
	case <-ctx.Done():
		err := ctx.Err()
		s.recordOp("Rename", start, err, false)

		return err
	}
}
