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

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/svckit/svckit/pkg/backoff"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/ctxutil"
	"github.com/svckit/svckit/pkg/filesystem"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/sentry"
)

var (
	// ErrConfigFileNotFound is wrapped into the error returned when the
	// config file is missing. Retrying cannot help since nothing recreates
	// the file at runtime.
	ErrConfigFileNotFound = errors.New("config file does not exist")

	// ErrConfigFileEmpty is wrapped into the error returned when the file
	// parses to an all-zero config.
	ErrConfigFileEmpty = errors.New("config file is empty")

	// ErrPermanentFailure marks errors returned after the manager has
	// latched into permanent failure. Reset clears the latch.
	ErrPermanentFailure = errors.New("config manager is permanently failed")
)

// singleton instance
// we avoid having more than one instance of the config manager because it can lead to race conditions
// if we ensure that we have only one instance, we can avoid race conditions by using mutexes in this single instance as we do here

// however, access from outside the process is not protected by mutexes (keep in mind e.g. when editing the config file by hand)
var (
	instance ConfigManager
	once     sync.Once
)

// ConfigManager is the interface for config management
type ConfigManager interface {
	// GetConfig returns the current config
	GetConfig(ctx context.Context) (FullConfig, error)
	// AtomicSetAPITokenHash sets the API token hash in the config atomically
	AtomicSetAPITokenHash(ctx context.Context, tokenHash string) error
}

// configCacheEntry pairs a parsed config with the hash of the raw bytes it
// came from, so unchanged files skip the YAML round trip.
type configCacheEntry struct {
	parsed FullConfig
	hash   uint64
	valid  bool
}

// FileConfigManager implements the ConfigManager interface by reading from a file
type FileConfigManager struct {
	// configPath is the path to the config file
	configPath string

	// fsService handles filesystem operations
	fsService filesystem.Service

	// logger is the logger for the config manager
	logger *zap.SugaredLogger

	// mutexAtomicUpdate for full cycle read and write access (atomic update) to the config file
	// all writes to the config need to happen under this mutex via an atomic set method -> writeConfig is therefore not exposed
	// the goal is to prevent two read/write cycles ("atomic updates") happening at the same time
	// we use our own implementation of a context aware mutex here to avoid deadlocks
	mutexAtomicUpdate *ctxutil.Mutex

	// simple mutex for read access or write access to the config file
	// it will be used by GetConfig and writeConfig
	// this mutex will allow multiple GetConfig calls to happen in parallel
	// it will prevent multiple reads or read/write cycles to happen at the same time
	// we use our own implementation of a context aware mutex here to avoid deadlocks
	mutexReadOrWrite *ctxutil.RWMutex

	// cache holds the last parsed config keyed by content hash
	cache   configCacheEntry
	cacheMu sync.Mutex
}

// NewFileConfigManager creates a new FileConfigManager
// Note: This should only be used in tests or if you need a custom config manager.
// Prefer NewFileConfigManagerWithBackoff() for application use.
func NewFileConfigManager() *FileConfigManager {
	return &FileConfigManager{
		configPath:        configPathFromEnv(),
		fsService:         filesystem.NewDefaultService(),
		logger:            logger.For(logger.ComponentConfigManager),
		mutexAtomicUpdate: ctxutil.NewMutex(),
		mutexReadOrWrite:  ctxutil.NewRWMutex(),
	}
}

// WithFileSystemService allows setting a custom filesystem service
// useful for testing or advanced use cases
func (m *FileConfigManager) WithFileSystemService(fsService filesystem.Service) *FileConfigManager {
	m.fsService = fsService
	return m
}

// WithConfigPath points the manager at a different config file
// useful for testing or advanced use cases
func (m *FileConfigManager) WithConfigPath(path string) *FileConfigManager {
	m.configPath = path
	return m
}

// get config or create new with the given overrides applied
// if the config file does not exist, it will be created with default values and then overwritten with the given overrides
func (m *FileConfigManager) GetConfigWithOverwritesOrCreateNew(ctx context.Context, overrides Overrides) (FullConfig, error) {
	// Check if context is already cancelled
	if ctx.Err() != nil {
		return FullConfig{}, ctx.Err()
	}

	// default config value
	config := DefaultFullConfig()

	exists, err := m.fsService.PathExists(ctx, m.configPath)
	switch {
	case err != nil:
		m.logger.Warnf("failed to check if config file exists in %s: %v", m.configPath, err)
	case exists:
		config, err = m.GetConfig(ctx)
		if err != nil {
			return FullConfig{}, fmt.Errorf("failed to get config that exists: %w", err)
		}
	}

	// Apply overrides
	overrides.apply(&config)

	// Persist the updated config
	if err := m.writeConfig(ctx, config); err != nil {
		return FullConfig{}, fmt.Errorf("failed to write new config: %w", err)
	}

	m.logger.Infof("Successfully wrote config to %s", m.configPath)
	return config, nil
}

// GetConfig returns the current config, reading fresh from disk and
// re-parsing only when the raw bytes changed since the last call
func (m *FileConfigManager) GetConfig(ctx context.Context) (FullConfig, error) {
	// we use a read lock here, because we only read the config file
	err := m.mutexReadOrWrite.RLock(ctx)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to lock config file: %w", err)
	}
	defer m.mutexReadOrWrite.RUnlock()

	// Check if context is already cancelled
	if ctx.Err() != nil {
		return FullConfig{}, ctx.Err()
	}

	// Create the directory if it doesn't exist
	dir := filepath.Dir(m.configPath)
	if err := m.fsService.EnsureDirectory(ctx, dir); err != nil {
		return FullConfig{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if context is already cancelled
	if ctx.Err() != nil {
		return FullConfig{}, ctx.Err()
	}

	// Check if the file exists
	exists, err := m.fsService.PathExists(ctx, m.configPath)
	if err != nil {
		return FullConfig{}, err
	}

	// A missing file is permanent: nothing recreates it while we run
	if !exists {
		return FullConfig{}, backoff.NewPermanentError(fmt.Errorf("%w: %s", ErrConfigFileNotFound, m.configPath))
	}

	// Check if context is already cancelled
	if ctx.Err() != nil {
		return FullConfig{}, ctx.Err()
	}

	// Read the file
	data, err := m.fsService.ReadFile(ctx, m.configPath)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	return m.parseConfig(data)
}

// parseConfig turns raw bytes into a FullConfig, consulting the content-hash
// cache first. Callers always get their own clone so mutations never reach
// the cached copy.
func (m *FileConfigManager) parseConfig(data []byte) (FullConfig, error) {
	hash := xxhash.Sum64(data)

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.cache.valid && m.cache.hash == hash {
		return m.cache.parsed.Clone(), nil
	}

	// Parse the YAML
	var config FullConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return FullConfig{}, backoff.NewPermanentError(fmt.Errorf("failed to parse config file: %w", err))
	}

	// If the config is empty, return an error
	// Note: sometimes it can happen that due to a filesystem error the file is truncated,
	// in this case we refuse the config instead of silently running with all defaults
	if reflect.DeepEqual(config, FullConfig{}) {
		return FullConfig{}, backoff.NewPermanentError(fmt.Errorf("%w: %s", ErrConfigFileEmpty, m.configPath))
	}

	config.applyDefaults()

	m.cache = configCacheEntry{parsed: config, hash: hash, valid: true}

	return config.Clone(), nil
}

// writeConfig writes the config to the file
// it should not be exposed or used outside of the config manager, due to potential race conditions
func (m *FileConfigManager) writeConfig(ctx context.Context, config FullConfig) error {
	// we use a write lock here, because we write the config file
	err := m.mutexReadOrWrite.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock config file: %w", err)
	}
	defer m.mutexReadOrWrite.Unlock()

	// Check if context is already cancelled
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Create the directory if it doesn't exist
	dir := filepath.Dir(m.configPath)
	if err := m.fsService.EnsureDirectory(ctx, dir); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal the config to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to a temp file and rename it over the config so readers never
	// observe a half-written file
	tmpPath := m.configPath + ".tmp"
	if err := m.fsService.WriteFile(ctx, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := m.fsService.Rename(ctx, tmpPath, m.configPath); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	m.logger.Infof("Successfully wrote config to %s", m.configPath)
	return nil
}

// AtomicSetAPITokenHash sets the API token hash in the config atomically
func (m *FileConfigManager) AtomicSetAPITokenHash(ctx context.Context, tokenHash string) error {
	err := m.mutexAtomicUpdate.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock config file: %w", err)
	}
	defer m.mutexAtomicUpdate.Unlock()

	// get the current config
	config, err := m.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	// edit the config
	config.Agent.APITokenHash = tokenHash

	// write the config
	if err := m.writeConfig(ctx, config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// FileConfigManagerWithBackoff wraps a FileConfigManager and implements backoff for GetConfig errors
type FileConfigManagerWithBackoff struct {
	// The wrapped file config manager
	configManager *FileConfigManager

	// Retry schedule for transient read failures
	retryConfig backoff.Config

	// Logger
	logger *zap.SugaredLogger

	// mu guards the failure state below
	mu              sync.Mutex
	lastError       error
	permanentFailed bool
}

// NewFileConfigManagerWithBackoff creates a new FileConfigManagerWithBackoff with exponential backoff
func NewFileConfigManagerWithBackoff() (*FileConfigManagerWithBackoff, error) {
	if instance != nil {
		return nil, fmt.Errorf("config manager already initialized, only one instance is allowed")
	}

	once.Do(func() {
		configManager := NewFileConfigManager()
		logger := logger.For(logger.ComponentConfigManager)

		instance = &FileConfigManagerWithBackoff{
			configManager: configManager,
			retryConfig:   backoff.DefaultConfig("ConfigManager", logger),
			logger:        logger,
		}
	})

	return instance.(*FileConfigManagerWithBackoff), nil
}

// GetConfigWithOverwritesOrCreateNew wraps the FileConfigManager's GetConfigWithOverwritesOrCreateNew method
// it is used in main.go to get the config with overwrites or create a new one on startup
func (m *FileConfigManagerWithBackoff) GetConfigWithOverwritesOrCreateNew(ctx context.Context, overrides Overrides) (FullConfig, error) {
	return m.configManager.GetConfigWithOverwritesOrCreateNew(ctx, overrides)
}

// WithFileSystemService allows setting a custom filesystem service on the wrapped FileConfigManager
// useful for testing or advanced use cases
func (m *FileConfigManagerWithBackoff) WithFileSystemService(fsService filesystem.Service) *FileConfigManagerWithBackoff {
	m.configManager.WithFileSystemService(fsService)
	return m
}

// WithConfigPath points the wrapped FileConfigManager at a different config file
func (m *FileConfigManagerWithBackoff) WithConfigPath(path string) *FileConfigManagerWithBackoff {
	m.configManager.WithConfigPath(path)
	return m
}

// GetConfig returns the current config with backoff logic for failures
// This is a wrapper around the FileConfigManager's GetConfig method
// Transient read errors are retried on the exponential schedule; permanent
// errors latch the manager into failure until Reset is called
func (m *FileConfigManagerWithBackoff) GetConfig(ctx context.Context) (FullConfig, error) {
	start := time.Now()
	failed := false
	defer func() {
		metrics.ObserveConfigLoad(failed, time.Since(start))
	}()

	// Check if context is already cancelled
	if ctx.Err() != nil {
		failed = true
		return FullConfig{}, ctx.Err()
	}

	// Once permanently failed, stop hitting the disk until someone resets us
	if m.IsPermanentFailure() {
		failed = true
		lastErr := m.GetLastError()
		sentry.ReportIssuef(sentry.IssueTypeError, m.logger, "ConfigManager is permanently failed. Last error: %v", lastErr)

		return FullConfig{}, fmt.Errorf("%w: %v", ErrPermanentFailure, lastErr)
	}

	var config FullConfig
	err := backoff.Retry(ctx, m.retryConfig, func() error {
		// Each attempt gets its own timeout so a wedged read does not eat
		// the whole retry budget
		getConfigCtx, cancel := context.WithTimeout(ctx, constants.ConfigGetConfigTimeout)
		defer cancel()

		var getErr error
		config, getErr = m.configManager.GetConfig(getConfigCtx)
		return getErr
	})
	if err != nil {
		failed = true
		m.setFailure(err)

		return FullConfig{}, err
	}

	m.clearFailure()
	return config, nil
}

// AtomicSetAPITokenHash delegates to the underlying FileConfigManager
func (m *FileConfigManagerWithBackoff) AtomicSetAPITokenHash(ctx context.Context, tokenHash string) error {
	// Check if context is already cancelled
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return m.configManager.AtomicSetAPITokenHash(ctx, tokenHash)
}

// Reset forcefully resets the config manager's state, including permanent failure status
// This should be called when the parent component has taken action to address the failure,
// for example after a parameter-change control triggered a reload
func (m *FileConfigManagerWithBackoff) Reset() {
	m.clearFailure()
}

// IsPermanentFailure returns true if the config manager has permanently failed
// This can be used by consumers to distinguish between temporary and permanent failures
func (m *FileConfigManagerWithBackoff) IsPermanentFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.permanentFailed
}

// GetLastError returns the last error that occurred when fetching the config
func (m *FileConfigManagerWithBackoff) GetLastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastError
}

func (m *FileConfigManagerWithBackoff) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err
	if backoff.IsPermanentError(err) {
		m.permanentFailed = true
	}
}

func (m *FileConfigManagerWithBackoff) clearFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = nil
	m.permanentFailed = false
}
