package repositories

import (
	"context"
	"sort"
	"sync"

	"github.com/Dosada05/rps-tournament-bot/models"
)

type memoryRecord struct {
	snapshot []byte
	groupID  string
	status   models.TournamentStatus
	seq      int
}

// memoryTournamentRepository keeps encoded snapshots, so callers never share
// memory with what is stored.
type memoryTournamentRepository struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	seq     int
}

func NewMemoryTournamentRepository() TournamentRepository {
	return &memoryTournamentRepository{records: make(map[string]*memoryRecord)}
}

func (r *memoryTournamentRepository) Save(ctx context.Context, t *models.Tournament) error {
	snapshot, err := encodeTournament(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !t.Status.Terminal() {
		for id, rec := range r.records {
			if id != t.ID && rec.groupID == t.GroupID && !rec.status.Terminal() {
				return ErrGroupConflict
			}
		}
	}
	rec, ok := r.records[t.ID]
	if !ok {
		r.seq++
		rec = &memoryRecord{seq: r.seq}
		r.records[t.ID] = rec
	}
	rec.snapshot = snapshot
	rec.groupID = t.GroupID
	rec.status = t.Status
	return nil
}

func (r *memoryTournamentRepository) GetByID(ctx context.Context, id string) (*models.Tournament, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return decodeTournament(rec.snapshot)
}

func (r *memoryTournamentRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for id, rec := range r.records {
		if !rec.status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return r.records[ids[i]].seq < r.records[ids[j]].seq })
	return ids, nil
}
