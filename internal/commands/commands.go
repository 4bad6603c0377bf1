// Package commands contains the built-in bot commands that manage minion trips.
package commands

import (
	"context"
	"time"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Trips is the part of domain.Service the commands use.
type Trips interface {
	StartActivity(ctx context.Context, in domain.StartInput) (*domain.Activity, error)
	CancelActivity(ctx context.Context, participantID string) (*domain.Activity, error)
	ActivityOf(participantID string) (domain.Activity, bool)
	FindActivity(ctx context.Context, participantID string) (*domain.Activity, error)
}

// Deps are the collaborators of the built-in commands.
type Deps struct {
	Trips Trips
	// TripTypes are the activity types players may start with the trip command.
	TripTypes   []string
	MaxDuration time.Duration
	Now         func() time.Time
}

// Register adds every built-in command to registry.
func Register(registry *command.Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return registry.Register(
		Minion(deps.Trips, deps.Now),
		Trip(deps.Trips, deps.TripTypes, deps.MaxDuration),
	)
}
