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

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAddValidation(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Spec: "@hourly", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "cleanup", Spec: "@hourly"}))
	assert.Error(t, s.Add(Job{Name: "cleanup", Spec: "not a cron spec", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "cleanup", Spec: "0 3 * * *", Run: noop}))
	assert.Equal(t, []string{"cleanup"}, s.Jobs())
}

func TestReaddReplacesSchedule(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "scan", Spec: "@hourly", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "scan", Spec: "@daily", Run: noop}))
	assert.Len(t, s.Jobs(), 1)

	s.Remove("scan")
	assert.Empty(t, s.Jobs())
	s.Remove("scan") // idempotent
}

func TestJobsRunAndFailuresAreContained(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	var ran, failed atomic.Int32

	require.NoError(t, s.Add(Job{
		Name: "ticker",
		Spec: "@every 50ms",
		Run: func(context.Context) error {
			ran.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(Job{
		Name: "broken",
		Spec: "@every 50ms",
		Run: func(context.Context) error {
			failed.Add(1)
			return fmt.Errorf("kv offline")
		},
	}))
	require.NoError(t, s.Add(Job{
		Name: "panicky",
		Spec: "@every 50ms",
		Run: func(context.Context) error {
			panic("boom")
		},
	}))

	s.Start()
	s.Start() // idempotent
	time.Sleep(180 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent

	assert.GreaterOrEqual(t, ran.Load(), int32(2), "healthy job keeps running next to failing ones")
	assert.GreaterOrEqual(t, failed.Load(), int32(2))
}
