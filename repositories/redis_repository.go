package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/rps-tournament-bot/models"
)

const (
	redisActiveSetKey = "tournaments:active"
	redisKeyPrefix    = "tournament:"
)

func redisTournamentKey(id string) string {
	return redisKeyPrefix + id
}

func redisGroupKey(groupID string) string {
	return "tournament-group:" + groupID
}

type redisTournamentRepository struct {
	client *redis.Client
}

func NewRedisTournamentRepository(client *redis.Client) TournamentRepository {
	return &redisTournamentRepository{client: client}
}

// Save claims the group with SETNX while the tournament is active, then
// writes the snapshot and active set membership in one transaction.
func (r *redisTournamentRepository) Save(ctx context.Context, t *models.Tournament) error {
	snapshot, err := encodeTournament(t)
	if err != nil {
		return err
	}

	groupKey := redisGroupKey(t.GroupID)
	owner, err := r.client.Get(ctx, groupKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read group claim %s: %w", t.GroupID, err)
	}
	if !t.Status.Terminal() && owner != t.ID {
		claimed, err := r.client.SetNX(ctx, groupKey, t.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to claim group %s: %w", t.GroupID, err)
		}
		if !claimed {
			return ErrGroupConflict
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisTournamentKey(t.ID), snapshot, 0)
	if t.Status.Terminal() {
		pipe.SRem(ctx, redisActiveSetKey, t.ID)
		if owner == t.ID {
			pipe.Del(ctx, groupKey)
		}
	} else {
		pipe.SAdd(ctx, redisActiveSetKey, t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tournament %s: %w", t.ID, err)
	}
	return nil
}

func (r *redisTournamentRepository) GetByID(ctx context.Context, id string) (*models.Tournament, error) {
	raw, err := r.client.Get(ctx, redisTournamentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament %s: %w", id, err)
	}
	return decodeTournament(raw)
}

func (r *redisTournamentRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, redisActiveSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active tournaments: %w", err)
	}
	return ids, nil
}
