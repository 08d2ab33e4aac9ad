package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/events"
	"github.com/flowcraft/chatagent/internal/events/inmem"
)

type fakePublisher struct {
	published []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.published = append(f.published, e)
	return nil
}

func TestRecorderAssignsMonotonicSeqPerSession(t *testing.T) {
	rec := events.NewRecorder(inmem.New(), nil)
	ctx := context.Background()

	e1, err := rec.Emit(ctx, events.Event{SessionID: "s1", Node: "classify_intent", Status: events.StatusStart})
	require.NoError(t, err)
	e2, err := rec.Emit(ctx, events.Event{SessionID: "s1", Node: "classify_intent", Status: events.StatusEnd})
	require.NoError(t, err)
	e3, err := rec.Emit(ctx, events.Event{SessionID: "s2", Node: "classify_intent", Status: events.StatusStart})
	require.NoError(t, err)

	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, int64(1), e3.Seq, "seq counters are per-session, not global")
}

func TestRecorderHistoryReplaysInOrder(t *testing.T) {
	rec := events.NewRecorder(inmem.New(), nil)
	ctx := context.Background()
	for _, status := range []events.Status{events.StatusStart, events.StatusEnd} {
		_, err := rec.Emit(ctx, events.Event{SessionID: "s1", Node: "plan", Status: status})
		require.NoError(t, err)
	}

	history, err := rec.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, events.StatusStart, history[0].Status)
	assert.Equal(t, events.StatusEnd, history[1].Status)
}

func TestRecorderMirrorsToPublisher(t *testing.T) {
	pub := &fakePublisher{}
	rec := events.NewRecorder(inmem.New(), pub)
	_, err := rec.Emit(context.Background(), events.Event{SessionID: "s1", Node: "evaluate", Status: events.StatusEnd})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "evaluate", pub.published[0].Node)
}

func TestNewPayloadTruncatesOversizedInput(t *testing.T) {
	huge := make(map[string]string, 1)
	big := make([]byte, events.MaxPayloadBytes+1000)
	for i := range big {
		big[i] = 'x'
	}
	huge["blob"] = string(big)
	payload := events.NewPayload(huge)
	assert.Less(t, len(payload), events.MaxPayloadBytes)
	assert.Contains(t, payload, "truncated")
}
