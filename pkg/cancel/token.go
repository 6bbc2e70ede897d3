// Package cancel implements cooperative cancellation (Design Notes §9):
// long block-copy loops poll a flag at block boundaries rather than
// reacting to context cancellation mid-syscall, so a cancelled backup
// always stops with a consistent, truncated-but-valid file rather than a
// torn write.
package cancel

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by Token.Check once the token has been
// requested to stop.
var ErrCancelled = errors.New("cancel: operation cancelled")

// Token is a polled cancellation flag, safe for concurrent use. The zero
// value is a live (not-yet-cancelled) token.
type Token struct {
	flag atomic.Bool
}

// New returns a fresh, live Token.
func New() *Token {
	return &Token{}
}

// Cancel marks the token cancelled. Idempotent.
func (t *Token) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.flag.Load()
}

// Check returns ErrCancelled if the token has been cancelled, else nil.
// Callers poll this at block boundaries (spec Design Notes §9), not inside
// a single page's read/write/checksum sequence.
func (t *Token) Check() error {
	if t.flag.Load() {
		return ErrCancelled
	}

	return nil
}

// Group is a set of tokens that share one upstream cancellation source
// (Design Notes §9: "a global flag plus per-thread/per-file flags" — a
// worker checks both so either a whole-backup abort or a single file's
// failure can stop just that worker's loop without stopping siblings that
// haven't failed yet).
type Group struct {
	global *Token
	local  *Token
}

// NewGroup derives a Group from a shared global token and a fresh local
// token scoped to one file/worker.
func NewGroup(global *Token) *Group {
	return &Group{global: global, local: New()}
}

// CancelLocal cancels only this Group's local scope, leaving siblings
// sharing the same global token unaffected.
func (g *Group) CancelLocal() {
	g.local.Cancel()
}

// Check returns ErrCancelled if either the global token or this group's
// local token has been cancelled.
func (g *Group) Check() error {
	if g.global != nil && g.global.Cancelled() {
		return ErrCancelled
	}

	return g.local.Check()
}
