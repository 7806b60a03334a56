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

package tools

import (
	"sync"
	"time"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const (
	// DefaultFailureThreshold consecutive failures open the circuit.
	DefaultFailureThreshold = 5

	// DefaultCooldown before an open circuit admits a probe.
	DefaultCooldown = 30 * time.Second
)

// ErrCircuitOpen is the error string reported on short-circuited calls.
const ErrCircuitOpen = "circuit_open"

type breakerEntry struct {
	state         string
	failureCount  int
	lastFailureAt time.Time
	openedAt      time.Time
	probeInFlight bool
}

// BreakerSet holds one circuit per (agent, tool) pair.
type BreakerSet struct {
	mu        sync.Mutex
	entries   map[string]*breakerEntry
	threshold int
	cooldown  time.Duration
	clk       clock.Clock
}

// NewBreakerSet creates a breaker set. Zero threshold/cooldown use the
// defaults.
func NewBreakerSet(threshold int, cooldown time.Duration, clk clock.Clock) *BreakerSet {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BreakerSet{
		entries:   make(map[string]*breakerEntry),
		threshold: threshold,
		cooldown:  cooldown,
		clk:       clk,
	}
}

func breakerKey(agentID, tool string) string {
	return agentID + "\x00" + tool
}

func (b *BreakerSet) entry(agentID, tool string) *breakerEntry {
	key := breakerKey(agentID, tool)
	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		b.entries[key] = e
	}
	return e
}

// Allow reports whether a call may proceed. An open circuit past its
// cooldown transitions to half-open and admits exactly one probe.
func (b *BreakerSet) Allow(agentID, tool string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(agentID, tool)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clk.Now().Sub(e.openedAt) < b.cooldown {
			return false
		}
		e.state = StateHalfOpen
		e.probeInFlight = true
		return true
	case StateHalfOpen:
		if e.probeInFlight {
			return false
		}
		e.probeInFlight = true
		return true
	}
	return true
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *BreakerSet) RecordSuccess(agentID, tool string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(agentID, tool)
	e.state = StateClosed
	e.failureCount = 0
	e.probeInFlight = false
}

// RecordFailure counts a failure; at the threshold (or on a failed
// half-open probe) the circuit opens.
func (b *BreakerSet) RecordFailure(agentID, tool string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()
	e := b.entry(agentID, tool)
	e.lastFailureAt = now

	if e.state == StateHalfOpen {
		e.state = StateOpen
		e.openedAt = now
		e.probeInFlight = false
		return
	}

	e.failureCount++
	if e.failureCount >= b.threshold {
		e.state = StateOpen
		e.openedAt = now
	}
}

// State returns the circuit state for a pair.
func (b *BreakerSet) State(agentID, tool string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(agentID, tool).state
}
