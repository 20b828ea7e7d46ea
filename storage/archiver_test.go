package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/rps-tournament-bot/events"
	"github.com/Dosada05/rps-tournament-bot/models"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	fails   int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fails > 0 {
		u.fails--
		return nil, errors.New("bucket unavailable")
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.objects[key] = raw
	return &UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://archive.example/" + key
}

func (u *fakeUploader) object(key string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	raw, ok := u.objects[key]
	return raw, ok
}

type staticSource map[string]*models.Tournament

func (s staticSource) GetTournament(_ context.Context, id string) (*models.Tournament, error) {
	t, ok := s[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return t, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func archiveMessage(t *testing.T, evt events.Event) *message.Message {
	t.Helper()
	msg, err := events.ToMessage(evt)
	require.NoError(t, err)
	return msg
}

func TestArchiver_Handle(t *testing.T) {
	tour := &models.Tournament{ID: "t1", GroupID: "g", Status: models.StatusCompleted, ChampionID: "A"}
	uploader := newFakeUploader()
	a := NewArchiver(uploader, staticSource{"t1": tour}, discardLogger())
	now := time.Now()

	require.NoError(t, a.Handle(archiveMessage(t, events.TournamentPaused{Envelope: events.NewEnvelope(tour, now)})))
	_, ok := uploader.object(ArchiveKey("t1"))
	assert.False(t, ok, "only terminal events are archived")

	require.NoError(t, a.Handle(archiveMessage(t, events.TournamentCompleted{Envelope: events.NewEnvelope(tour, now), ChampionID: "A"})))
	raw, ok := uploader.object("tournaments/t1.json")
	require.True(t, ok)

	var stored models.Tournament
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "A", stored.ChampionID)

	missing := &models.Tournament{ID: "gone"}
	err := a.Handle(archiveMessage(t, events.TournamentCancelled{Envelope: events.NewEnvelope(missing, now)}))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestArchiver_RetriesThroughRouter(t *testing.T) {
	logger := discardLogger()
	wmLogger := watermill.NewSlogLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	require.NoError(t, err)

	tour := &models.Tournament{ID: "t2", GroupID: "g", Status: models.StatusCancelled}
	uploader := newFakeUploader()
	uploader.fails = 2
	a := NewArchiver(uploader, staticSource{"t2": tour}, logger)
	a.retry.InitialInterval = time.Millisecond
	a.Register(router, pubSub, events.Topic)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = router.Close()
		_ = pubSub.Close()
	})
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	publisher := events.NewWatermillPublisher(pubSub, events.Topic, logger)
	require.NoError(t, publisher.Publish(ctx, events.TournamentCancelled{Envelope: events.NewEnvelope(tour, time.Now()), Reason: "admin"}))

	assert.Eventually(t, func() bool {
		_, ok := uploader.object(ArchiveKey("t2"))
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
