package command

import (
	"context"
	"fmt"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// VerdictKind is the result class of an inhibitor.
type VerdictKind int

const (
	// Pass lets the command continue.
	Pass VerdictKind = iota
	// BlockSilent stops the command without telling the user.
	BlockSilent
	// BlockWithReason stops the command and shows Reason to the user.
	BlockWithReason
)

// Verdict is returned by an Inhibitor.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Allow lets the command run.
func Allow() Verdict { return Verdict{Kind: Pass} }

// Silent blocks without feedback.
func Silent() Verdict { return Verdict{Kind: BlockSilent} }

// Block blocks with a user-visible reason.
func Block(format string, args ...any) Verdict {
	return Verdict{Kind: BlockWithReason, Reason: fmt.Sprintf(format, args...)}
}

// Blocked reports whether the verdict stops the command.
func (v Verdict) Blocked() bool { return v.Kind != Pass }

// Inhibitor is a pre-check run before every command body.
type Inhibitor interface {
	Inhibit(ctx context.Context, cmd AbstractCommand, inv Invocation) Verdict
}

// InhibitorFunc adapts a function to Inhibitor.
type InhibitorFunc func(ctx context.Context, cmd AbstractCommand, inv Invocation) Verdict

// Inhibit calls f.
func (f InhibitorFunc) Inhibit(ctx context.Context, cmd AbstractCommand, inv Invocation) Verdict {
	return f(ctx, cmd, inv)
}

// TripTracker exposes the trip state inhibitors need.
type TripTracker interface {
	ActivityOf(participantID string) (domain.Activity, bool)
	IsCompleting(participantID string) bool
}

// Blacklist answers whether a user is banned from the bot.
type Blacklist interface {
	IsBlacklisted(userID string) bool
}

// StaticBlacklist is a fixed set of banned user ids.
type StaticBlacklist map[string]struct{}

// NewStaticBlacklist builds a StaticBlacklist from ids.
func NewStaticBlacklist(ids []string) StaticBlacklist {
	out := make(StaticBlacklist, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// IsBlacklisted implements Blacklist.
func (b StaticBlacklist) IsBlacklisted(userID string) bool {
	_, ok := b[userID]
	return ok
}

// BlacklistInhibitor silently drops commands from banned users.
func BlacklistInhibitor(list Blacklist) Inhibitor {
	return InhibitorFunc(func(_ context.Context, _ AbstractCommand, inv Invocation) Verdict {
		if list.IsBlacklisted(inv.UserID) {
			return Silent()
		}
		return Allow()
	})
}

// GuardInhibitor blocks every command while the user's trip is being completed.
func GuardInhibitor(trips TripTracker) Inhibitor {
	return InhibitorFunc(func(_ context.Context, _ AbstractCommand, inv Invocation) Verdict {
		if trips.IsCompleting(inv.UserID) {
			return Block("Your minion is just returning from its trip, try again in a moment.")
		}
		return Allow()
	})
}

// TripInhibitor blocks RequiresIdle commands while the user's minion is away.
func TripInhibitor(trips TripTracker) Inhibitor {
	return InhibitorFunc(func(_ context.Context, cmd AbstractCommand, inv Invocation) Verdict {
		if !cmd.RequiresIdle {
			return Allow()
		}
		if activity, busy := trips.ActivityOf(inv.UserID); busy {
			return Block("Your minion is busy with a %s trip and can't do that right now.", activity.Type)
		}
		return Allow()
	})
}

// PerkTierResolver returns the patron tier of a user.
type PerkTierResolver interface {
	PerkTier(ctx context.Context, userID string) int
}

// StaticPerkTiers maps user ids to their patron tier.
type StaticPerkTiers map[string]int

// PerkTier implements PerkTierResolver.
func (t StaticPerkTiers) PerkTier(_ context.Context, userID string) int {
	return t[userID]
}

// PerkTierInhibitor gates commands behind a patron tier.
func PerkTierInhibitor(tiers PerkTierResolver) Inhibitor {
	return InhibitorFunc(func(ctx context.Context, cmd AbstractCommand, inv Invocation) Verdict {
		if cmd.PerkTier <= 0 {
			return Allow()
		}
		if tiers.PerkTier(ctx, inv.UserID) < cmd.PerkTier {
			return Block("This command is only available to Tier %d patrons.", cmd.PerkTier)
		}
		return Allow()
	})
}
