package brackets

import (
	"context"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// SeedingPolicy decides the seed order of entrants before pairing.
type SeedingPolicy string

const (
	// SeedByRegistration seeds entrants in the order they are given.
	SeedByRegistration SeedingPolicy = "registration"
	// SeedAsGiven keeps the Seed already set on each entry.
	SeedAsGiven SeedingPolicy = "given"
)

type GenerateBracketParams struct {
	TournamentID string
	Entrants     []models.PlayerEntry
	Policy       SeedingPolicy
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error)

	GetName() string
}
