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

package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cactus/tai64"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/logger"
)

// StampedEntry is an Entry together with the time it was written,
// recovered from its TAI64N stamp.
type StampedEntry struct {
	Entry
	Time time.Time `json:"time"`
}

// FileSink persists entries as TAI64N-stamped lines:
//
//	@<tai64n> <severity> <service>: <message>
//
// The live file is rotated into a zstd-compressed archive once it would
// exceed maxBytes; archives beyond maxArchives are pruned oldest first.
type FileSink struct {
	mu          sync.Mutex
	path        string
	maxBytes    int64
	maxArchives int
	file        *os.File
	size        int64
	logger      *zap.SugaredLogger
}

// NewFileSink opens (or creates) the live event log file at path.
// Non-positive limits fall back to the package defaults.
func NewFileSink(path string, maxBytes int64, maxArchives int) (*FileSink, error) {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultEventLogMaxBytes
	}
	if maxArchives <= 0 {
		maxArchives = constants.DefaultEventLogMaxArchives
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	s := &FileSink{
		path:        path,
		maxBytes:    maxBytes,
		maxArchives: maxArchives,
		logger:      logger.For(logger.ComponentEventLog),
	}

	if err := s.open(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log %s: %w", s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat event log %s: %w", s.path, err)
	}

	s.file = f
	s.size = info.Size()

	return nil
}

// Write implements Sink. Writes after Close are dropped.
func (s *FileSink) Write(entry Entry) {
	line := formatLine(time.Now(), entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}

	if s.size > 0 && s.size+int64(len(line)) > s.maxBytes {
		if err := s.rotate(); err != nil {
			s.logger.Errorf("event log rotation failed: %v", err)
		}
	}

	n, err := s.file.WriteString(line)
	if err != nil {
		s.logger.Errorf("event log write failed: %v", err)
		return
	}
	s.size += int64(n)
}

// Tail returns the newest n entries, oldest first. It reads the live file
// and, when that holds fewer than n lines, prepends the most recent
// archive. Lines that fail to parse are skipped.
func (s *FileSink) Tail(n int) ([]StampedEntry, error) {
	if n <= 0 {
		n = constants.DefaultEventTailLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.liveLines()
	if err != nil {
		return nil, err
	}

	if len(lines) < n {
		archived, err := s.newestArchiveLines()
		if err != nil {
			s.logger.Warnf("event log archive read failed: %v", err)
		} else {
			lines = append(archived, lines...)
		}
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	entries := make([]StampedEntry, 0, len(lines))
	for _, line := range lines {
		if e, ok := parseLine(line); ok {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// Close flushes and closes the live file. Safe to call twice.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return err
}

// rotate compresses the live file into a stamped archive and truncates it.
// Callers hold s.mu.
func (s *FileSink) rotate() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read event log for rotation: %w", err)
	}

	stamp := strings.TrimPrefix(tai64.FormatNano(time.Now()), "@")
	archive := fmt.Sprintf("%s.%s%s", s.path, stamp, constants.EventLogArchiveSuffix)

	if err := writeCompressed(archive, data); err != nil {
		return err
	}

	// The handle is in append mode, so truncating resets the write offset.
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate event log: %w", err)
	}
	s.size = 0

	s.prune()

	return nil
}

// prune removes the oldest archives beyond the retention count.
// Callers hold s.mu.
func (s *FileSink) prune() {
	archives, err := s.archives()
	if err != nil {
		s.logger.Warnf("event log prune skipped: %v", err)
		return
	}

	for len(archives) > s.maxArchives {
		if err := os.Remove(archives[0]); err != nil {
			s.logger.Warnf("failed to prune event log archive %s: %v", archives[0], err)
			return
		}
		archives = archives[1:]
	}
}

// archives returns rotated archive paths sorted oldest first. TAI64N
// labels are fixed-width hex, so the lexicographic order is chronological.
func (s *FileSink) archives() ([]string, error) {
	matches, err := filepath.Glob(s.path + ".*" + constants.EventLogArchiveSuffix)
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)

	return matches, nil
}

func (s *FileSink) liveLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	return splitLines(data), nil
}

func (s *FileSink) newestArchiveLines() ([]string, error) {
	archives, err := s.archives()
	if err != nil || len(archives) == 0 {
		return nil, err
	}

	f, err := os.Open(archives[len(archives)-1])
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	return splitLines(data), nil
}

func formatLine(t time.Time, entry Entry) string {
	return fmt.Sprintf("%s %s %s: %s\n", tai64.FormatNano(t), entry.Severity, entry.Service, entry.Message)
}

// parseLine is the inverse of formatLine.
func parseLine(line string) (StampedEntry, bool) {
	line = strings.TrimRight(line, "\n")

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return StampedEntry{}, false
	}

	ts, err := tai64.Parse(parts[0])
	if err != nil {
		return StampedEntry{}, false
	}

	service, message, found := strings.Cut(parts[2], ": ")
	if !found {
		return StampedEntry{}, false
	}

	return StampedEntry{
		Entry: Entry{
			Service:  service,
			Message:  message,
			Severity: Severity(parts[1]),
		},
		Time: ts,
	}, true
}

func writeCompressed(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(f,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("failed to compress archive %s: %w", path, err)
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to finish archive %s: %w", path, err)
	}

	return f.Close()
}

func splitLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
