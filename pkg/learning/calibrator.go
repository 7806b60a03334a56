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

// Package learning tracks how well agent confidence matches reality:
// a bucketed calibrator that blends raw confidence with observed
// accuracy, and a self-correction log that flags accuracy drops.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/kv"
)

const (
	numBuckets = 5

	// fullBlendCount: at this many observations a bucket's accuracy
	// fully replaces the raw confidence.
	fullBlendCount = 20

	calibrationRecordID = "buckets"
)

// Bucket accumulates prediction outcomes for one confidence band.
type Bucket struct {
	PredictionCount int `json:"predictionCount"`
	CorrectCount    int `json:"correctCount"`
}

// Calibrator maps raw confidence to calibrated confidence using five
// fixed buckets over [0,0.2)…[0.8,1.0]. State persists on every update
// so a restart resumes with identical calibration.
type Calibrator struct {
	mu      sync.Mutex
	buckets [numBuckets]Bucket

	store  kv.Store
	logger *zap.Logger
}

// NewCalibrator creates a calibrator, rehydrating persisted buckets
// when the store holds them.
func NewCalibrator(ctx context.Context, store kv.Store, logger *zap.Logger) (*Calibrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Calibrator{store: store, logger: logger}

	if store != nil {
		blob, err := store.GetByID(ctx, kv.TableCalibration, "global", calibrationRecordID)
		switch {
		case err == nil:
			if err := json.Unmarshal(blob, &c.buckets); err != nil {
				return nil, fmt.Errorf("calibration state corrupt: %w", err)
			}
		case err == kv.ErrNotFound:
			// First run.
		default:
			return nil, fmt.Errorf("load calibration state: %w", err)
		}
	}
	return c, nil
}

func bucketIndex(confidence float64) int {
	i := int(math.Floor(confidence * numBuckets))
	if i < 0 {
		return 0
	}
	if i >= numBuckets {
		return numBuckets - 1
	}
	return i
}

// RecordPrediction folds one resolved prediction into its bucket.
func (c *Calibrator) RecordPrediction(ctx context.Context, predictionID string, confidence float64, correct bool) {
	c.mu.Lock()
	b := &c.buckets[bucketIndex(confidence)]
	b.PredictionCount++
	if correct {
		b.CorrectCount++
	}
	snapshot := c.buckets
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	c.logger.Debug("prediction recorded",
		zap.String("prediction_id", predictionID),
		zap.Float64("confidence", confidence),
		zap.Bool("correct", correct))
}

func (c *Calibrator) persist(ctx context.Context, snapshot [numBuckets]Bucket) {
	if c.store == nil {
		return
	}
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.store.Insert(ctx, kv.TableCalibration, "global", calibrationRecordID, blob); err != nil {
		c.logger.Warn("calibration persist failed", zap.Error(err))
	}
}

// GetCalibratedConfidence blends raw confidence with the bucket's
// observed accuracy, weighting accuracy by how much evidence the
// bucket holds.
func (c *Calibrator) GetCalibratedConfidence(raw float64) float64 {
	clamped := math.Max(0, math.Min(1, raw))

	c.mu.Lock()
	b := c.buckets[bucketIndex(clamped)]
	c.mu.Unlock()

	if b.PredictionCount == 0 {
		return clamped
	}
	accuracy := float64(b.CorrectCount) / float64(b.PredictionCount)
	w := math.Min(float64(b.PredictionCount)/fullBlendCount, 1)
	return clamped*(1-w) + accuracy*w
}

// CalibrationError is the mean absolute gap between bucket midpoints
// and observed accuracy over non-empty buckets.
func (c *Calibrator) CalibrationError() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := 0.0
	n := 0
	for i, b := range c.buckets {
		if b.PredictionCount == 0 {
			continue
		}
		midpoint := (float64(i) + 0.5) / numBuckets
		accuracy := float64(b.CorrectCount) / float64(b.PredictionCount)
		sum += math.Abs(midpoint - accuracy)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Buckets returns a snapshot of the calibration state.
func (c *Calibrator) Buckets() [numBuckets]Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets
}
