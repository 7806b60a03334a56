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

// Package communication provides direct agent-to-agent messaging,
// consensus voting sessions and capability-based task routing.
package communication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

// Message types.
const (
	TypeHelpRequest      = "HelpRequest"
	TypeHelpResponse     = "HelpResponse"
	TypeTaskDelegation   = "TaskDelegation"
	TypeInformationShare = "InformationShare"
	TypeBroadcast        = "Broadcast"
)

// DefaultHelpTimeout bounds how long a help request waits for a response.
const DefaultHelpTimeout = 30 * time.Second

// Message is one inter-agent message.
type Message struct {
	MessageID     string                 `json:"messageId"`
	From          string                 `json:"from"`
	To            string                 `json:"to,omitempty"`
	Type          string                 `json:"type"`
	Content       map[string]interface{} `json:"content"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Priority      string                 `json:"priority,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Inbox receives messages synchronously on the sender's goroutine.
// A slow inbox stalls the sender; inboxes must be fast.
type Inbox func(msg *Message)

// Messenger routes messages between registered agents.
type Messenger struct {
	mu      sync.RWMutex
	inboxes map[string]Inbox
	pending map[string]chan *Message // correlationID -> waiter

	clk    clock.Clock
	logger *zap.Logger
}

// NewMessenger creates a messenger.
func NewMessenger(clk clock.Clock, logger *zap.Logger) *Messenger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{
		inboxes: make(map[string]Inbox),
		pending: make(map[string]chan *Message),
		clk:     clk,
		logger:  logger,
	}
}

// Register attaches an agent's inbox and returns an unregister function.
func (m *Messenger) Register(agentID string, inbox Inbox) func() {
	m.mu.Lock()
	m.inboxes[agentID] = inbox
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.inboxes, agentID)
			m.mu.Unlock()
		})
	}
}

// Send delivers a message to its recipient's inbox. Help responses also
// resolve any waiter blocked on the same correlation id.
func (m *Messenger) Send(msg *Message) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("messenger: recipient is required")
	}
	m.stamp(msg)

	m.mu.RLock()
	inbox, registered := m.inboxes[msg.To]
	var waiter chan *Message
	if msg.Type == TypeHelpResponse && msg.CorrelationID != "" {
		waiter = m.pending[msg.CorrelationID]
	}
	m.mu.RUnlock()

	if waiter != nil {
		select {
		case waiter <- msg:
		default:
			// Requester already timed out.
		}
		return nil
	}
	if !registered {
		return fmt.Errorf("messenger: agent %s not registered", msg.To)
	}

	inbox(msg)
	return nil
}

// Broadcast sends to every registered agent except the sender and
// returns the number of recipients.
func (m *Messenger) Broadcast(from string, content map[string]interface{}) int {
	m.mu.RLock()
	recipients := make(map[string]Inbox, len(m.inboxes))
	for id, inbox := range m.inboxes {
		if id != from {
			recipients[id] = inbox
		}
	}
	m.mu.RUnlock()

	for id, inbox := range recipients {
		msg := &Message{From: from, To: id, Type: TypeBroadcast, Content: content}
		m.stamp(msg)
		inbox(msg)
	}
	return len(recipients)
}

// RequestHelp sends a help request and blocks until the matching help
// response arrives, the timeout elapses or ctx is cancelled.
func (m *Messenger) RequestHelp(ctx context.Context, from, to string, content map[string]interface{}, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultHelpTimeout
	}
	correlationID := uuid.New().String()
	waiter := make(chan *Message, 1)

	m.mu.Lock()
	m.pending[correlationID] = waiter
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, correlationID)
		m.mu.Unlock()
	}()

	req := &Message{
		From:          from,
		To:            to,
		Type:          TypeHelpRequest,
		Content:       content,
		CorrelationID: correlationID,
	}
	if err := m.Send(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-m.clk.After(timeout):
		return nil, fmt.Errorf("help request to %s timed out after %s", to, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisteredAgents returns the ids with attached inboxes.
func (m *Messenger) RegisteredAgents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.inboxes))
	for id := range m.inboxes {
		out = append(out, id)
	}
	return out
}

func (m *Messenger) stamp(msg *Message) {
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.clk.Now()
	}
}
