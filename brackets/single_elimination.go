package brackets

import (
	"context"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Dosada05/rps-tournament-bot/models"
)

var (
	ErrInsufficientPlayers = fmt.Errorf("%w: cannot generate bracket with zero entrants", models.ErrValidation)
	ErrTooManyEntrants     = fmt.Errorf("%w: too many entrants for a single bracket", models.ErrCapacity)
	ErrDuplicateEntrant    = fmt.Errorf("%w: entrant listed twice", models.ErrValidation)
	ErrUnknownPolicy       = fmt.Errorf("%w: unknown seeding policy", models.ErrValidation)
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateBracket pads the field to the next power of two and pairs it with
// standard seeding: seed 1 meets the lowest seed, and seeds 1 and 2 sit in
// opposite halves. Padding slots are vacant, so byes fall to the top seeds.
// Bye matches are left pending; the caller finalizes them.
func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error) {
	n := len(params.Entrants)
	if n == 0 {
		return nil, ErrInsufficientPlayers
	}
	if n > models.MaxCapacity {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyEntrants, n, models.MaxCapacity)
	}

	seeded, err := orderEntrants(params.Entrants, params.Policy)
	if err != nil {
		return nil, err
	}

	numRounds := bits.Len(uint(n - 1))
	size := 1 << uint(numRounds)

	bracket := &models.Bracket{Size: size, Rounds: make([]models.Round, numRounds)}
	if numRounds == 0 {
		return bracket, nil
	}

	order := seedOrder(size)
	first := make([]*models.Match, size/2)
	for s := range first {
		m := newMatch(params.TournamentID, 0, s)
		for side := 0; side < 2; side++ {
			seed := order[2*s+side]
			if seed <= n {
				m.Participants[side] = seeded[seed-1].PlayerID
			} else {
				m.Vacant[side] = true
			}
		}
		if m.Vacant[0] && m.Vacant[1] {
			return nil, fmt.Errorf("internal error: match %s has no entrants", m.ID)
		}
		first[s] = m
	}
	bracket.Rounds[0] = models.Round{Index: 0, Matches: first}

	for r := 1; r < numRounds; r++ {
		matches := make([]*models.Match, size>>(r+1))
		for s := range matches {
			m := newMatch(params.TournamentID, r, s)
			m.Sources[0] = &models.SlotRef{Round: r - 1, Slot: 2 * s}
			m.Sources[1] = &models.SlotRef{Round: r - 1, Slot: 2*s + 1}
			matches[s] = m
		}
		bracket.Rounds[r] = models.Round{Index: r, Matches: matches}
	}
	return bracket, nil
}

func newMatch(tournamentID string, round, slot int) *models.Match {
	return &models.Match{
		ID:    MatchID(tournamentID, round, slot),
		Round: round,
		Slot:  slot,
		State: models.MatchPending,
	}
}

// MatchID formats the public id of the match at zero-based (round, slot).
func MatchID(tournamentID string, round, slot int) string {
	return fmt.Sprintf("%s-R%dM%d", tournamentID, round+1, slot+1)
}

func orderEntrants(entrants []models.PlayerEntry, policy SeedingPolicy) ([]models.PlayerEntry, error) {
	seen := make(map[string]bool, len(entrants))
	for _, e := range entrants {
		if e.PlayerID == "" {
			return nil, fmt.Errorf("%w: entrant without a player id", models.ErrValidation)
		}
		if seen[e.PlayerID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntrant, e.PlayerID)
		}
		seen[e.PlayerID] = true
	}

	out := make([]models.PlayerEntry, len(entrants))
	copy(out, entrants)
	switch policy {
	case SeedByRegistration, "":
	case SeedAsGiven:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	for i := range out {
		out[i].Seed = i + 1
	}
	return out, nil
}

// seedOrder lists seeds by first-round position for a bracket of size
// slots, e.g. 8 -> [1 8 4 5 2 7 3 6].
func seedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		total := len(order) * 2
		next := make([]int, 0, total)
		for _, s := range order {
			next = append(next, s, total+1-s)
		}
		order = next
	}
	return order
}
