package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/Dosada05/rps-tournament-bot/events"
	"github.com/Dosada05/rps-tournament-bot/models"
)

const archiveHandlerName = "storage.archive_tournament"

// SnapshotSource returns the current state of a tournament.
type SnapshotSource interface {
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
}

// Archiver uploads the final snapshot of every tournament that completes or
// is cancelled.
type Archiver struct {
	uploader FileUploader
	source   SnapshotSource
	logger   *slog.Logger
	retry    middleware.Retry
}

func NewArchiver(uploader FileUploader, source SnapshotSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		uploader: uploader,
		source:   source,
		logger:   logger,
		retry: middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			Logger:          watermill.NewSlogLogger(logger),
		},
	}
}

func ArchiveKey(tournamentID string) string {
	return fmt.Sprintf("tournaments/%s.json", tournamentID)
}

// Register subscribes the archiver to topic. Messages that still fail after
// the retries are logged and acked.
func (a *Archiver) Register(router *message.Router, subscriber message.Subscriber, topic string) {
	handle := a.retry.Middleware(func(msg *message.Message) ([]*message.Message, error) {
		return nil, a.Handle(msg)
	})
	router.AddNoPublisherHandler(archiveHandlerName, topic, subscriber, func(msg *message.Message) error {
		if _, err := handle(msg); err != nil {
			a.logger.Error("failed to archive tournament",
				slog.String("tournament_id", msg.Metadata.Get(events.MetadataTournamentID)),
				slog.Any("error", err),
			)
		}
		return nil
	})
}

func (a *Archiver) Handle(msg *message.Message) error {
	switch events.Type(msg.Metadata.Get(events.MetadataType)) {
	case events.TypeTournamentCompleted, events.TypeTournamentCancelled:
	default:
		return nil
	}

	ctx := msg.Context()
	id := msg.Metadata.Get(events.MetadataTournamentID)
	t, err := a.source.GetTournament(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load tournament %s for archive: %w", id, err)
	}
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tournament %s for archive: %w", id, err)
	}

	res, err := a.uploader.Upload(ctx, ArchiveKey(id), "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "tournament archived",
		slog.String("tournament_id", id),
		slog.String("status", string(t.Status)),
		slog.String("key", res.Key),
		slog.String("location", res.Location),
	)
	return nil
}
