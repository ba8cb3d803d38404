// Package control holds the single shared piece of mutable global state
// the rest of the system is allowed to touch at runtime: the kill switch
// and the trading mode. Everything else flows through explicit config
// structs passed down at construction time.
package control

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Mode is the trade-execution policy.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeDryRun    Mode = "dry_run"
	ModeAlertOnly Mode = "alert_only"
)

// TradingControl is the dedicated shared object spec §9 calls for in
// place of scattered global settings: an atomic kill switch plus a mode
// enum, owned by the composition root and read by every background loop
// on each tick. Engaging the kill switch is idempotent and sticky — it
// is reset only by an explicit operator Reset() call, never implicitly,
// per the Safety-Rails/Validator consistency decision in DESIGN.md.
type TradingControl struct {
	paused atomic.Bool

	mu     sync.RWMutex
	mode   Mode
	reason string
}

// New creates a TradingControl in the given starting mode, not paused.
func New(mode Mode) *TradingControl {
	return &TradingControl{mode: mode}
}

// Engage sets the kill switch. Safe to call repeatedly; only the first
// call's reason sticks.
func (c *TradingControl) Engage(reason string) {
	if c.paused.CompareAndSwap(false, true) {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		log.Warn().Str("reason", reason).Msg("kill switch engaged")
	}
}

// Reset clears the kill switch. Intended to be called only from an
// explicit operator command.
func (c *TradingControl) Reset() {
	if c.paused.CompareAndSwap(true, false) {
		c.mu.Lock()
		c.reason = ""
		c.mu.Unlock()
		log.Info().Msg("kill switch reset by operator")
	}
}

// Paused reports whether the kill switch is engaged.
func (c *TradingControl) Paused() bool {
	return c.paused.Load()
}

// Reason returns the reason the kill switch was engaged, if any.
func (c *TradingControl) Reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// Mode returns the current trading mode.
func (c *TradingControl) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode changes the trading mode.
func (c *TradingControl) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	log.Info().Str("mode", string(m)).Msg("trading mode changed")
}
