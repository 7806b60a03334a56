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

package communication

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
	"github.com/teradata-labs/sentinel/pkg/memory"
)

type recordingInbox struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *recordingInbox) inbox(msg *Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingInbox) received() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.msgs...)
}

func TestMessengerSendDelivers(t *testing.T) {
	m := NewMessenger(clock.NewFake(time.Unix(1000, 0)), zaptest.NewLogger(t))
	var rec recordingInbox
	unregister := m.Register("AGENT-2", rec.inbox)
	defer unregister()

	err := m.Send(&Message{
		From:    "AGENT-1",
		To:      "AGENT-2",
		Type:    TypeInformationShare,
		Content: map[string]interface{}{"sellerId": "S-9"},
	})
	require.NoError(t, err)

	msgs := rec.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "AGENT-1", msgs[0].From)
	assert.NotEmpty(t, msgs[0].MessageID)
	assert.Equal(t, time.Unix(1000, 0), msgs[0].CreatedAt)
}

func TestMessengerSendUnknownRecipient(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))
	err := m.Send(&Message{From: "AGENT-1", To: "ghost", Type: TypeInformationShare})
	assert.Error(t, err)
	assert.Error(t, m.Send(&Message{From: "AGENT-1"}))
}

func TestMessengerUnregisterStopsDelivery(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))
	var rec recordingInbox
	unregister := m.Register("AGENT-2", rec.inbox)
	unregister()
	unregister() // idempotent

	err := m.Send(&Message{From: "AGENT-1", To: "AGENT-2", Type: TypeInformationShare})
	assert.Error(t, err)
	assert.Empty(t, m.RegisteredAgents())
}

func TestMessengerBroadcastExcludesSender(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))
	var sender, b, c recordingInbox
	m.Register("AGENT-1", sender.inbox)
	m.Register("AGENT-2", b.inbox)
	m.Register("AGENT-3", c.inbox)

	n := m.Broadcast("AGENT-1", map[string]interface{}{"alert": "velocity spike"})
	assert.Equal(t, 2, n)
	assert.Empty(t, sender.received())
	require.Len(t, b.received(), 1)
	assert.Equal(t, TypeBroadcast, b.received()[0].Type)
	require.Len(t, c.received(), 1)
}

func TestMessengerRequestHelpResolved(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))

	// Helper answers every help request over the same messenger.
	m.Register("AGENT-2", func(msg *Message) {
		if msg.Type != TypeHelpRequest {
			return
		}
		go func() {
			_ = m.Send(&Message{
				From:          "AGENT-2",
				To:            msg.From,
				Type:          TypeHelpResponse,
				Content:       map[string]interface{}{"answer": "looks like card testing"},
				CorrelationID: msg.CorrelationID,
			})
		}()
	})

	resp, err := m.RequestHelp(context.Background(), "AGENT-1", "AGENT-2",
		map[string]interface{}{"question": "pattern?"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "AGENT-2", resp.From)
	assert.Equal(t, "looks like card testing", resp.Content["answer"])
}

func TestMessengerRequestHelpTimesOut(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))
	m.Register("AGENT-2", func(*Message) {}) // never responds

	_, err := m.RequestHelp(context.Background(), "AGENT-1", "AGENT-2", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestMessengerRequestHelpDefaultTimeoutOnFakeClock(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	m := NewMessenger(clk, zaptest.NewLogger(t))
	m.Register("AGENT-2", func(*Message) {}) // never responds

	done := make(chan error, 1)
	go func() {
		_, err := m.RequestHelp(context.Background(), "AGENT-1", "AGENT-2", nil, 0)
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for {
		clk.Advance(10 * time.Second)
		select {
		case err := <-done:
			require.Error(t, err)
			assert.Contains(t, err.Error(), "timed out after "+DefaultHelpTimeout.String())
			return
		case <-deadline:
			t.Fatal("help request never timed out")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestMessengerRequestHelpContextCancelled(t *testing.T) {
	m := NewMessenger(nil, zaptest.NewLogger(t))
	m.Register("AGENT-2", func(*Message) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.RequestHelp(ctx, "AGENT-1", "AGENT-2", nil, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsensusMajority(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A", "B", "C"})
	require.NoError(t, err)

	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE", Confidence: 0.9}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "APPROVE", Confidence: 0.8}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "C", Decision: "BLOCK", Confidence: 0.7}))

	out, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, out.Consensus)
	assert.Equal(t, "APPROVE", out.Decision)
	assert.Equal(t, 2.0, out.Support)
}

func TestConsensusMajorityTieFails(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A", "B"})
	require.NoError(t, err)

	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE", Confidence: 0.9}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "BLOCK", Confidence: 0.9}))

	out, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, out.Consensus)
	assert.Empty(t, out.Decision)
}

func TestConsensusVoteRules(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A", "B"})
	require.NoError(t, err)

	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE"}))
	assert.Error(t, c.CastVote(id, Vote{VoterID: "A", Decision: "BLOCK"}), "vote once")
	assert.Error(t, c.CastVote(id, Vote{VoterID: "intruder", Decision: "BLOCK"}), "only required voters")
	assert.Error(t, c.CastVote("missing", Vote{VoterID: "A", Decision: "APPROVE"}))

	_, err = c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.Error(t, c.CastVote(id, Vote{VoterID: "B", Decision: "APPROVE"}), "session closed")
}

func TestConsensusEvaluateIdempotent(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "REVIEW"}))

	first, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	second, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestConsensusUnanimous(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))

	id, err := c.OpenSession(StrategyUnanimous, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "BLOCK"}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "BLOCK"}))
	out, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, out.Consensus)
	assert.Equal(t, "BLOCK", out.Decision)

	// A missing required vote breaks unanimity even with agreement.
	id2, err := c.OpenSession(StrategyUnanimous, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id2, Vote{VoterID: "A", Decision: "BLOCK"}))
	out2, err := c.Evaluate(context.Background(), id2)
	require.NoError(t, err)
	assert.False(t, out2.Consensus)
}

func TestConsensusWeighted(t *testing.T) {
	c := NewConsensus(nil, zaptest.NewLogger(t))

	// APPROVE carries 0.9 of 1.3 total weight (~0.69 > 0.6).
	id, err := c.OpenSession(StrategyWeighted, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE", Confidence: 0.9}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "BLOCK", Confidence: 0.4}))
	out, err := c.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, out.Consensus)
	assert.Equal(t, "APPROVE", out.Decision)
	assert.InDelta(t, 0.692, out.Support, 0.01)

	// An even split never clears the share bar.
	id2, err := c.OpenSession(StrategyWeighted, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id2, Vote{VoterID: "A", Decision: "APPROVE", Confidence: 0.5}))
	require.NoError(t, c.CastVote(id2, Vote{VoterID: "B", Decision: "BLOCK", Confidence: 0.5}))
	out2, err := c.Evaluate(context.Background(), id2)
	require.NoError(t, err)
	assert.False(t, out2.Consensus)
}

func TestConsensusDisagreementWritesCorrections(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewStore(kv.NewMemoryStore(), clock.NewFake(time.Unix(0, 0)), zaptest.NewLogger(t))
	require.NoError(t, err)

	c := NewConsensus(store, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE", Confidence: 0.8}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "BLOCK", Confidence: 0.8}))

	out, err := c.Evaluate(ctx, id)
	require.NoError(t, err)
	require.False(t, out.Consensus)

	for _, voter := range []string{"A", "B"} {
		entries, err := store.GetByType(ctx, voter, memory.TypeCorrection)
		require.NoError(t, err)
		require.Len(t, entries, 1, "voter %s", voter)
		assert.Equal(t, disagreementImportance, entries[0].Importance)
		assert.Equal(t, "consensus_disagreement", entries[0].Content["event"])
		assert.Equal(t, id, entries[0].Content["sessionId"])
	}
}

func TestConsensusAgreementWritesNothing(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewStore(kv.NewMemoryStore(), clock.NewFake(time.Unix(0, 0)), zaptest.NewLogger(t))
	require.NoError(t, err)

	c := NewConsensus(store, zaptest.NewLogger(t))
	id, err := c.OpenSession(StrategyMajority, []string{"A", "B", "C"})
	require.NoError(t, err)
	require.NoError(t, c.CastVote(id, Vote{VoterID: "A", Decision: "APPROVE"}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "B", Decision: "APPROVE"}))
	require.NoError(t, c.CastVote(id, Vote{VoterID: "C", Decision: "APPROVE"}))

	out, err := c.Evaluate(ctx, id)
	require.NoError(t, err)
	require.True(t, out.Consensus)

	entries, err := store.GetByType(ctx, "A", memory.TypeCorrection)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRouterPrefersSuccessRate(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	r.RegisterAgent("reliable", "seller_scan")
	r.RegisterAgent("flaky", "seller_scan")

	// reliable: 4/4, flaky: 1/4. Equal load, success rate decides.
	for i := 0; i < 4; i++ {
		r.TaskStarted("reliable")
		r.TaskCompleted("reliable", true)
		r.TaskStarted("flaky")
		r.TaskCompleted("flaky", i == 0)
	}

	got, err := r.Route("seller_scan")
	require.NoError(t, err)
	assert.Equal(t, "reliable", got)
}

func TestRouterLoadBreaksTies(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	r.RegisterAgent("busy", "txn_review")
	r.RegisterAgent("idle", "txn_review")

	r.TaskStarted("busy")
	r.TaskStarted("busy")
	assert.Equal(t, 2, r.Load("busy"))

	got, err := r.Route("txn_review")
	require.NoError(t, err)
	assert.Equal(t, "idle", got)

	r.TaskCompleted("busy", true)
	r.TaskCompleted("busy", true)
	assert.Equal(t, 0, r.Load("busy"))
}

func TestRouterFiltersByTaskType(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	r.RegisterAgent("scanner", "seller_scan")

	_, err := r.Route("txn_review")
	assert.Error(t, err)

	got, err := r.Route("seller_scan")
	require.NoError(t, err)
	assert.Equal(t, "scanner", got)

	r.UnregisterAgent("scanner")
	_, err = r.Route("seller_scan")
	assert.Error(t, err)
}

func TestRouterCompletionForUnknownAgentIsNoop(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	r.TaskCompleted("ghost", true)
	r.TaskStarted("ghost")
	assert.Equal(t, 0, r.Load("ghost"))
}
