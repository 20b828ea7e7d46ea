package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/rps-tournament-bot/models"
)

type tournamentFactory struct {
	faker *gofakeit.Faker
}

func newTournamentFactory() *tournamentFactory {
	return &tournamentFactory{faker: gofakeit.New(uint64(time.Now().UnixNano()))}
}

func (f *tournamentFactory) tournament(groupID string) *models.Tournament {
	now := time.Now().UTC().Truncate(time.Millisecond)
	deadline := now.Add(time.Minute)
	t := &models.Tournament{
		ID:                   f.faker.LetterN(8),
		GroupID:              groupID,
		Status:               models.StatusRegistration,
		Capacity:             4,
		RegistrationDeadline: deadline,
		CreatedBy:            f.faker.Numerify("#########"),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i := 1; i <= 2; i++ {
		t.Roster = append(t.Roster, models.PlayerEntry{
			PlayerID:    f.faker.Numerify("#########"),
			DisplayName: f.faker.Username(),
			Seed:        i,
		})
	}
	return t
}

func (f *tournamentFactory) group() string {
	return "chat-" + f.faker.Numerify("##########")
}

// runRepositoryContract exercises behaviour every TournamentRepository
// implementation must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) TournamentRepository) {
	f := newTournamentFactory()
	ctx := context.Background()

	t.Run("save and load round trip", func(t *testing.T) {
		repo := newRepo(t)
		tour := f.tournament(f.group())
		deadline := tour.CreatedAt.Add(30 * time.Second)
		tour.Status = models.StatusInProgress
		tour.Bracket = &models.Bracket{Size: 2, Rounds: []models.Round{{Index: 0, Matches: []*models.Match{{
			ID:            tour.ID + "-R1M1",
			Participants:  [2]string{tour.Roster[0].PlayerID, tour.Roster[1].PlayerID},
			State:         models.MatchAwaitingChoices,
			Choices:       map[string]models.ChoiceRecord{tour.Roster[0].PlayerID: {Choice: models.ChoiceRock, SubmittedAt: tour.CreatedAt}},
			Deadline:      &deadline,
			DeadlineToken: 3,
		}}}}}
		require.NoError(t, repo.Save(ctx, tour))

		got, err := repo.GetByID(ctx, tour.ID)
		require.NoError(t, err)
		assert.Equal(t, tour.GroupID, got.GroupID)
		assert.Equal(t, tour.Roster, got.Roster)
		m := got.Bracket.Rounds[0].Matches[0]
		assert.Equal(t, models.ChoiceRock, m.Choices[tour.Roster[0].PlayerID].Choice)
		assert.Equal(t, uint64(3), m.DeadlineToken)
		require.NotNil(t, m.Deadline)
		assert.True(t, deadline.Equal(*m.Deadline))
	})

	t.Run("missing tournament", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrTournamentNotFound)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("one active tournament per group", func(t *testing.T) {
		repo := newRepo(t)
		group := f.group()
		first := f.tournament(group)
		require.NoError(t, repo.Save(ctx, first))

		second := f.tournament(group)
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, ErrGroupConflict)
		assert.ErrorIs(t, err, models.ErrStateConflict)

		first.Status = models.StatusCompleted
		require.NoError(t, repo.Save(ctx, first))
		require.NoError(t, repo.Save(ctx, second))
	})

	t.Run("active listing excludes terminal", func(t *testing.T) {
		repo := newRepo(t)
		open := f.tournament(f.group())
		closed := f.tournament(f.group())
		require.NoError(t, repo.Save(ctx, open))
		require.NoError(t, repo.Save(ctx, closed))
		closed.Status = models.StatusCancelled
		require.NoError(t, repo.Save(ctx, closed))

		ids, err := repo.ListActiveIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, open.ID)
		assert.NotContains(t, ids, closed.ID)
	})
}

func TestMemoryTournamentRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) TournamentRepository {
		return NewMemoryTournamentRepository()
	})
}

func TestMemoryTournamentRepository_ListsInSaveOrder(t *testing.T) {
	f := newTournamentFactory()
	repo := NewMemoryTournamentRepository()
	var want []string
	for i := 0; i < 5; i++ {
		tour := f.tournament(f.group())
		require.NoError(t, repo.Save(context.Background(), tour))
		want = append(want, tour.ID)
	}
	ids, err := repo.ListActiveIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, ids)
}
