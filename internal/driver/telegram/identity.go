package telegram

import (
	"fmt"
	"sync/atomic"

	"muster/pkg/muster"
)

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral muster platform produced by the Telegram runtime.
	DriverPlatform muster.Platform = muster.PlatformTelegram
)

// SelfIdentityHolder exposes the authorized bot account once login completes.
//
// Reads before authorization return muster.ErrIdentityUnavailable so modules
// can distinguish "not logged in yet" from a resolved identity.
type SelfIdentityHolder struct {
	actor atomic.Pointer[muster.Actor]
}

// NewSelfIdentityHolder creates an empty identity holder.
func NewSelfIdentityHolder() *SelfIdentityHolder {
	return &SelfIdentityHolder{}
}

// Set stores the authorized account identity.
func (h *SelfIdentityHolder) Set(actor muster.Actor) {
	if h == nil {
		return
	}
	copied := actor
	h.actor.Store(&copied)
}

// Self returns the authorized account identity.
func (h *SelfIdentityHolder) Self() (muster.Actor, error) {
	if h == nil {
		return muster.Actor{}, fmt.Errorf("self identity: nil holder")
	}

	actor := h.actor.Load()
	if actor == nil {
		return muster.Actor{}, fmt.Errorf("self identity: %w", muster.ErrIdentityUnavailable)
	}

	return *actor, nil
}
