package credits

import (
	"time"

	"github.com/ravigill3969/examly/backend/models"
)

const (
	DefaultFreeMax    = 10
	DefaultFreeWindow = 48 * time.Hour
)

type Entitlement struct {
	OK            bool       `json:"ok"`
	Credits       int        `json:"credits"`
	FreeActive    bool       `json:"freeActive"`
	FreeRemaining int        `json:"freeRemaining"`
	FreeExpiresAt *time.Time `json:"freeExpiresAt"`
	FreeUsed      int        `json:"freeUsed"`
}

// Policy holds the free-trial limits.
type Policy struct {
	FreeMax    int
	FreeWindow time.Duration
}

var DefaultPolicy = Policy{FreeMax: DefaultFreeMax, FreeWindow: DefaultFreeWindow}

// Snapshot evaluates p under DefaultPolicy.
func Snapshot(p *models.Profile, now time.Time) Entitlement {
	return DefaultPolicy.Snapshot(p, now)
}

// Snapshot derives the entitlement view of p at now. A nil profile is
// treated as a fresh one.
func (pol Policy) Snapshot(p *models.Profile, now time.Time) Entitlement {
	if p == nil {
		return Entitlement{}
	}

	credits := max(p.Credits, 0)
	used := max(p.FreeUsed, 0)

	active := freeActive(p, now)
	remaining := 0
	if active {
		remaining = max(pol.FreeMax-used, 0)
	}

	return Entitlement{
		OK:            credits > 0 || remaining > 0,
		Credits:       credits,
		FreeActive:    active,
		FreeRemaining: remaining,
		FreeExpiresAt: p.FreeExpiresAt,
		FreeUsed:      used,
	}
}

func freeActive(p *models.Profile, now time.Time) bool {
	return p.FreeExpiresAt != nil && p.FreeExpiresAt.After(now)
}
