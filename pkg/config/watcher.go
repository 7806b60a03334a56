// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ThresholdWatcher hot-reloads the autonomy thresholds from a file.
// Invalid updates are logged and skipped; the last good thresholds
// stay in effect.
type ThresholdWatcher struct {
	path     string
	onChange func(Thresholds)
	logger   *zap.Logger

	mu      sync.RWMutex
	current Thresholds

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
}

// NewThresholdWatcher reads the initial thresholds from path and
// begins watching it for writes. onChange may be nil.
func NewThresholdWatcher(path string, onChange func(Thresholds), logger *zap.Logger) (*ThresholdWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial, err := loadThresholds(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	// Watch the directory: editors replace files, which drops a watch
	// on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &ThresholdWatcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		current:  initial,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the thresholds in effect.
func (w *ThresholdWatcher) Current() Thresholds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching. Idempotent.
func (w *ThresholdWatcher) Close() {
	w.closed.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *ThresholdWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("threshold watcher error", zap.Error(err))
		}
	}
}

func (w *ThresholdWatcher) reload() {
	updated, err := loadThresholds(w.path)
	if err != nil {
		w.logger.Warn("threshold reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	unchanged := updated == w.current
	w.current = updated
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Info("thresholds reloaded",
		zap.Float64("auto_approve_max_risk", updated.AutoApproveMaxRisk),
		zap.Float64("auto_reject_min_risk", updated.AutoRejectMinRisk),
		zap.Float64("escalate_min_risk", updated.EscalateMinRisk))
	if w.onChange != nil {
		w.onChange(updated)
	}
}

func loadThresholds(path string) (Thresholds, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Thresholds{}, fmt.Errorf("config: read thresholds %s: %w", path, err)
	}
	var t Thresholds
	if err := v.Unmarshal(&t); err != nil {
		return Thresholds{}, fmt.Errorf("config: thresholds %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}
