package brackets

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/rps-tournament-bot/models"
)

func entrants(n int) []models.PlayerEntry {
	faker := gofakeit.New(uint64(n))
	out := make([]models.PlayerEntry, n)
	for i := range out {
		out[i] = models.PlayerEntry{
			PlayerID:    fmt.Sprintf("p%d", i+1),
			DisplayName: faker.Name(),
			Seed:        i + 1,
		}
	}
	return out
}

func generate(t *testing.T, list []models.PlayerEntry) *models.Bracket {
	t.Helper()
	b, err := NewSingleEliminationGenerator().GenerateBracket(context.Background(), GenerateBracketParams{
		TournamentID: "t1",
		Entrants:     list,
	})
	require.NoError(t, err)
	return b
}

func TestGenerateBracket_Shape(t *testing.T) {
	for n := 1; n <= models.MaxCapacity; n++ {
		t.Run(fmt.Sprintf("%d entrants", n), func(t *testing.T) {
			b := generate(t, entrants(n))

			wantRounds := int(math.Ceil(math.Log2(float64(n))))
			assert.Len(t, b.Rounds, wantRounds)
			assert.GreaterOrEqual(t, b.Size, n)
			assert.Zero(t, b.Size&(b.Size-1), "size must be a power of two")
			require.NoError(t, b.Verify())

			if n == 1 {
				assert.Nil(t, b.Final())
				return
			}

			placed := map[string]bool{}
			byes := 0
			for _, m := range b.Rounds[0].Matches {
				for side := 0; side < 2; side++ {
					switch {
					case m.Participants[side] != "":
						assert.False(t, placed[m.Participants[side]], "entrant placed twice")
						placed[m.Participants[side]] = true
					case m.Vacant[side]:
						byes++
						assert.NotEmpty(t, m.Participants[1-side], "bye must face a real entrant")
					default:
						t.Fatalf("slot %d of %s is neither filled nor a bye", side, m.ID)
					}
				}
			}
			assert.Len(t, placed, n)
			assert.Equal(t, b.Size-n, byes)

			for r := 1; r < len(b.Rounds); r++ {
				for s, m := range b.Rounds[r].Matches {
					require.NotNil(t, m.Sources[0])
					require.NotNil(t, m.Sources[1])
					assert.Equal(t, models.SlotRef{Round: r - 1, Slot: 2 * s}, *m.Sources[0])
					assert.Equal(t, models.SlotRef{Round: r - 1, Slot: 2*s + 1}, *m.Sources[1])
				}
			}
		})
	}
}

// pathMeeting returns the zero-based round where two first-round slots can
// first meet.
func pathMeeting(a, b int) int {
	r := 0
	for a != b {
		a, b = a/2, b/2
		r++
	}
	return r
}

func firstRoundSlot(t *testing.T, b *models.Bracket, playerID string) int {
	t.Helper()
	for _, m := range b.Rounds[0].Matches {
		if m.HasParticipant(playerID) {
			return m.Slot
		}
	}
	t.Fatalf("player %s not in round one", playerID)
	return -1
}

func TestGenerateBracket_TopSeedsMeetOnlyInFinal(t *testing.T) {
	b := generate(t, entrants(8))

	s1 := firstRoundSlot(t, b, "p1")
	s2 := firstRoundSlot(t, b, "p2")
	assert.Equal(t, len(b.Rounds)-1, pathMeeting(s1, s2))

	pairs := [][2]string{}
	for _, m := range b.Rounds[0].Matches {
		pairs = append(pairs, m.Participants)
	}
	assert.Equal(t, [][2]string{{"p1", "p8"}, {"p4", "p5"}, {"p2", "p7"}, {"p3", "p6"}}, pairs)
}

func TestGenerateBracket_ByesGoToTopSeeds(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		wantByes []string
	}{
		{name: "three entrants", n: 3, wantByes: []string{"p1"}},
		{name: "five entrants", n: 5, wantByes: []string{"p1", "p2", "p3"}},
		{name: "six entrants", n: 6, wantByes: []string{"p1", "p2"}},
		{name: "four entrants", n: 4, wantByes: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := generate(t, entrants(tt.n))
			var byes []string
			for _, m := range b.Rounds[0].Matches {
				if m.Vacant[1] {
					byes = append(byes, m.Participants[0])
				}
				if m.Vacant[0] {
					byes = append(byes, m.Participants[1])
				}
			}
			assert.ElementsMatch(t, tt.wantByes, byes)
		})
	}
}

func TestGenerateBracket_FourPlayerPairing(t *testing.T) {
	list := []models.PlayerEntry{{PlayerID: "A"}, {PlayerID: "B"}, {PlayerID: "C"}, {PlayerID: "D"}}
	b := generate(t, list)

	require.Len(t, b.Rounds, 2)
	assert.Equal(t, [2]string{"A", "D"}, b.Rounds[0].Matches[0].Participants)
	assert.Equal(t, [2]string{"B", "C"}, b.Rounds[0].Matches[1].Participants)
	assert.Equal(t, "t1-R1M1", b.Rounds[0].Matches[0].ID)
	assert.Equal(t, "t1-R2M1", b.Final().ID)
}

func TestGenerateBracket_Deterministic(t *testing.T) {
	list := entrants(11)
	first := generate(t, list)
	second := generate(t, list)
	assert.Equal(t, first, second)
}

func TestGenerateBracket_SeedAsGiven(t *testing.T) {
	list := []models.PlayerEntry{
		{PlayerID: "late", Seed: 3},
		{PlayerID: "top", Seed: 1},
		{PlayerID: "mid", Seed: 2},
	}
	b, err := NewSingleEliminationGenerator().GenerateBracket(context.Background(), GenerateBracketParams{
		TournamentID: "t1",
		Entrants:     list,
		Policy:       SeedAsGiven,
	})
	require.NoError(t, err)

	assert.Equal(t, "top", b.Rounds[0].Matches[0].Participants[0])
	assert.True(t, b.Rounds[0].Matches[0].Vacant[1])
	assert.Equal(t, [2]string{"mid", "late"}, b.Rounds[0].Matches[1].Participants)
}

func TestGenerateBracket_Errors(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	ctx := context.Background()

	tests := []struct {
		name    string
		params  GenerateBracketParams
		wantErr error
		kind    error
	}{
		{name: "empty", params: GenerateBracketParams{}, wantErr: ErrInsufficientPlayers, kind: models.ErrValidation},
		{name: "too many", params: GenerateBracketParams{Entrants: entrants(17)}, wantErr: ErrTooManyEntrants, kind: models.ErrCapacity},
		{
			name:    "duplicate",
			params:  GenerateBracketParams{Entrants: []models.PlayerEntry{{PlayerID: "a"}, {PlayerID: "a"}}},
			wantErr: ErrDuplicateEntrant,
			kind:    models.ErrValidation,
		},
		{
			name:    "unknown policy",
			params:  GenerateBracketParams{Entrants: entrants(2), Policy: "random"},
			wantErr: ErrUnknownPolicy,
			kind:    models.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := gen.GenerateBracket(ctx, tt.params)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestSeedOrder(t *testing.T) {
	assert.Equal(t, []int{1}, seedOrder(1))
	assert.Equal(t, []int{1, 2}, seedOrder(2))
	assert.Equal(t, []int{1, 4, 2, 3}, seedOrder(4))
	assert.Equal(t, []int{1, 16, 8, 9, 4, 13, 5, 12, 2, 15, 7, 10, 3, 14, 6, 11}, seedOrder(16))
}
