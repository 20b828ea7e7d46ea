package models

import (
	"fmt"
	"strings"
)

type Choice string

const (
	ChoiceRock     Choice = "rock"
	ChoicePaper    Choice = "paper"
	ChoiceScissors Choice = "scissors"
)

var ErrUnknownChoice = fmt.Errorf("%w: unknown choice", ErrValidation)

// beats maps each choice to the one it defeats.
var beats = map[Choice]Choice{
	ChoiceRock:     ChoiceScissors,
	ChoiceScissors: ChoicePaper,
	ChoicePaper:    ChoiceRock,
}

func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

func (c Choice) Beats(other Choice) bool {
	return beats[c] == other
}

// ParseChoice accepts the choice names in any case and the emoji the chat
// bot has always advertised next to them.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r", "🪨":
		return ChoiceRock, nil
	case "paper", "p", "📄":
		return ChoicePaper, nil
	case "scissors", "s", "✂️", "✂":
		return ChoiceScissors, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChoice, s)
}
