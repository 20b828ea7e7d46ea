package services

import (
	"fmt"

	"github.com/Dosada05/rps-tournament-bot/models"
)

var allowedStatusTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusRegistration: {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress:   {models.StatusPaused, models.StatusCompleted, models.StatusCancelled},
	models.StatusPaused:       {models.StatusInProgress, models.StatusCancelled},
}

func isValidStatusTransition(from, to models.TournamentStatus) bool {
	for _, allowed := range allowedStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(t *models.Tournament, to models.TournamentStatus) error {
	if !isValidStatusTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	return nil
}

func findMatch(t *models.Tournament, matchID string) (*models.Match, error) {
	if t.Bracket == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	m, ok := t.Bracket.FindMatch(matchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return m, nil
}

func forEachMatch(t *models.Tournament, fn func(m *models.Match)) {
	if t.Bracket == nil {
		return
	}
	for _, round := range t.Bracket.Rounds {
		for _, m := range round.Matches {
			fn(m)
		}
	}
}

// eliminate records the one-based round a player went out in. The first
// recorded round wins.
func eliminate(t *models.Tournament, playerID string, round int) {
	entry, ok := t.Player(playerID)
	if !ok || entry.EliminatedAtRound != nil {
		return
	}
	r := round + 1
	entry.EliminatedAtRound = &r
}

// dropEntrant removes a registration and closes the gap in the seeds.
func dropEntrant(t *models.Tournament, playerID string) {
	roster := t.Roster[:0]
	for _, entry := range t.Roster {
		if entry.PlayerID != playerID {
			roster = append(roster, entry)
		}
	}
	t.Roster = roster
	t.Reseed()
}

func copyScore(score map[string]int) map[string]int {
	out := make(map[string]int, len(score))
	for k, v := range score {
		out[k] = v
	}
	return out
}
