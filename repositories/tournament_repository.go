package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Dosada05/rps-tournament-bot/models"
)

var (
	ErrTournamentNotFound = fmt.Errorf("%w: tournament not found", models.ErrNotFound)
	ErrGroupConflict      = fmt.Errorf("%w: group already has an active tournament", models.ErrStateConflict)
)

// TournamentRepository stores whole tournament aggregates, including open
// choices and deadlines, so a restarted process can resume them.
type TournamentRepository interface {
	Save(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id string) (*models.Tournament, error)
	// ListActiveIDs returns ids of tournaments that are not completed or
	// cancelled.
	ListActiveIDs(ctx context.Context) ([]string, error)
}

const tournamentsSchema = `
	CREATE TABLE IF NOT EXISTS tournaments (
		id         TEXT PRIMARY KEY,
		group_id   TEXT NOT NULL,
		status     TEXT NOT NULL,
		snapshot   JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS tournaments_active_group_key
		ON tournaments (group_id)
		WHERE status NOT IN ('completed', 'cancelled');`

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

// EnsureSchema creates the tournaments table when it does not exist.
func EnsureSchema(ctx context.Context, exec SQLExecutor) error {
	if _, err := exec.ExecContext(ctx, tournamentsSchema); err != nil {
		return fmt.Errorf("failed to create tournaments schema: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) Save(ctx context.Context, t *models.Tournament) error {
	snapshot, err := encodeTournament(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tournaments (id, group_id, status, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.GroupID, t.Status, snapshot, t.CreatedAt, t.UpdatedAt,
	)
	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id string) (*models.Tournament, error) {
	query := `SELECT snapshot FROM tournaments WHERE id = $1`

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return decodeTournament(raw)
}

func (r *postgresTournamentRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT id FROM tournaments
		WHERE status = ANY($1)
		ORDER BY created_at`

	active := pq.Array([]string{
		string(models.StatusRegistration),
		string(models.StatusInProgress),
		string(models.StatusPaused),
	})
	rows, err := r.db.QueryContext(ctx, query, active)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tournaments: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tournament id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament ids: %w", err)
	}
	return ids, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_active_group_key" {
				return ErrGroupConflict
			}
		}
	}
	return err
}
