// config_watcher.go: configuration hot reload with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"sync"
	"time"

	"github.com/agilira/argus"
)

// ConfigWatcher watches a configuration file and delivers a freshly
// parsed Configuration to a callback on every change. The registry uses
// it to pick up driver.dir edits without a restart: the typical callback
// re-runs Initialize with the new configuration.
type ConfigWatcher struct {
	path     string
	logger   Logger
	onChange func(Configuration)

	watcher  *argus.Watcher
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// ConfigWatcherOptions tunes the underlying file watcher.
type ConfigWatcherOptions struct {
	// PollInterval controls change-detection latency. Zero selects one
	// second, which is plenty for configuration files.
	PollInterval time.Duration
}

// NewConfigWatcher creates a watcher for the given configuration file.
// The callback receives the re-parsed configuration; parse failures are
// logged and the previous configuration stays in effect.
func NewConfigWatcher(path string, onChange func(Configuration), logger any, options ConfigWatcherOptions) *ConfigWatcher {
	internalLogger := NewLogger(logger)

	pollInterval := options.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}

	argusConfig := argus.Config{
		PollInterval:         pollInterval,
		MaxWatchedFiles:      5,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			internalLogger.Error("Config file watching error", "error", err, "file", filepath)
		},
	}

	return &ConfigWatcher{
		path:     path,
		logger:   internalLogger,
		onChange: onChange,
		watcher:  argus.New(argusConfig),
	}
}

// Start begins watching the configuration file.
func (cw *ConfigWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.started {
		return nil
	}

	if err := cw.watcher.Watch(cw.path, cw.handleChange); err != nil {
		return NewConfigFileError(cw.path, "failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		return NewConfigFileError(cw.path, "failed to start config watcher", err)
	}

	cw.started = true
	cw.logger.Info("Configuration watcher started", "path", cw.path)
	return nil
}

// Stop halts watching. Safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		cw.mu.Lock()
		defer cw.mu.Unlock()
		if !cw.started {
			return
		}
		cw.started = false
		if stopErr := cw.watcher.Stop(); stopErr != nil {
			err = NewConfigFileError(cw.path, "failed to stop config watcher", stopErr)
		}
	})
	return err
}

func (cw *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		cw.logger.Warn("Configuration file removed", "path", cw.path)
		return
	}

	config, err := LoadConfiguration(cw.path)
	if err != nil {
		cw.logger.Error("Configuration reload failed, keeping previous configuration",
			"path", cw.path, "error", err)
		return
	}

	cw.logger.Info("Configuration reloaded", "path", cw.path)
	cw.onChange(config)
}
