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

// Package bus provides in-process topic pub/sub for runtime events.
// Topics are colon-separated (`alert:created`); subscription patterns may
// end with `*` as a suffix wildcard (`alert:*`).
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event is a single published event.
type Event struct {
	Topic     string
	Payload   map[string]interface{}
	Timestamp time.Time
}

// Handler receives events. Handlers run synchronously on the publisher's
// goroutine and must not block long; a slow handler is the subscriber's bug.
type Handler func(evt Event)

// EventBus fans events out to pattern-matched subscribers.
// A subscriber observes events from a single publisher in publish order.
// Safe for concurrent use.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	logger      *zap.Logger

	// Metrics (atomic counters)
	totalPublished atomic.Int64
	totalDelivered atomic.Int64

	closed atomic.Bool
}

type subscription struct {
	pattern string
	handler Handler
}

// New creates an event bus.
func New(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		logger:      logger,
	}
}

// Publish delivers an event to every matching subscriber and returns the
// delivery count. Publishing on a closed bus is a silent no-op.
func (b *EventBus) Publish(topic string, payload map[string]interface{}) int {
	if b.closed.Load() || topic == "" {
		return 0
	}

	evt := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	matched := make([]Handler, 0, 4)
	for _, sub := range b.subscribers {
		if matchesPattern(sub.pattern, topic) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(evt)
	}

	b.totalPublished.Add(1)
	b.totalDelivered.Add(int64(len(matched)))

	b.logger.Debug("bus publish",
		zap.String("topic", topic),
		zap.Int("delivered", len(matched)))

	return len(matched)
}

// Subscribe registers a handler for a topic pattern and returns an
// unsubscribe function. Unsubscribing twice is harmless.
func (b *EventBus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	if pattern == "" || handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = &subscription{pattern: pattern, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stats returns cumulative publish/delivery counters.
func (b *EventBus) Stats() (published, delivered int64) {
	return b.totalPublished.Load(), b.totalDelivered.Load()
}

// Close drops all subscriptions and rejects further publishes.
func (b *EventBus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	b.subscribers = make(map[int]*subscription)
	b.mu.Unlock()

	b.logger.Info("event bus closed",
		zap.Int64("total_published", b.totalPublished.Load()),
		zap.Int64("total_delivered", b.totalDelivered.Load()))
}

// matchesPattern reports whether a topic matches a subscription pattern.
// `*` is a suffix wildcard only: "alert:*" matches "alert:created" and
// "alert", "*" matches everything.
func matchesPattern(pattern, topic string) bool {
	if pattern == topic || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(topic, prefix) || topic == strings.TrimSuffix(prefix, ":")
	}
	return false
}
