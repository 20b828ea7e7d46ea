package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/rps-tournament-bot/models"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestWatermillPublisher_Publish(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewSlogLogger(logger))
	t.Cleanup(func() { _ = pubSub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	messages, err := pubSub.Subscribe(ctx, Topic)
	require.NoError(t, err)

	tour := &models.Tournament{ID: "abc12345", GroupID: "chat-1"}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	publisher := NewWatermillPublisher(pubSub, "", logger)

	err = publisher.Publish(ctx,
		ChoiceAccepted{Envelope: NewEnvelope(tour, now), MatchID: "abc12345-R1M1", PlayerID: "A"},
		TournamentCompleted{Envelope: NewEnvelope(tour, now), ChampionID: "A"},
	)
	require.NoError(t, err)

	first := receive(t, messages)
	assert.Equal(t, string(TypeChoiceAccepted), first.Metadata.Get(MetadataType))
	assert.Equal(t, "abc12345", first.Metadata.Get(MetadataTournamentID))
	assert.Equal(t, "chat-1", first.Metadata.Get(MetadataGroupID))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.Equal(t, "A", payload["player_id"])
	assert.NotContains(t, payload, "choice")

	second := receive(t, messages)
	var completed TournamentCompleted
	require.NoError(t, json.Unmarshal(second.Payload, &completed))
	assert.Equal(t, "A", completed.ChampionID)
	assert.Equal(t, "abc12345", completed.TournamentID)
	assert.True(t, now.Equal(completed.OccurredAt))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	tour := &models.Tournament{ID: "t1"}
	require.NoError(t, r.Publish(context.Background(),
		TournamentPaused{Envelope: NewEnvelope(tour, time.Now())},
		TournamentResumed{Envelope: NewEnvelope(tour, time.Now())},
	))
	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(TypeTournamentPaused), 1)
	r.Reset()
	assert.Empty(t, r.Events())
}
