package app

import (
	"context"
	"sync"
)

type turnToken struct {
	cancel context.CancelFunc
}

// turnGuard hands each turn an explicit cancellation token scoped to its
// session. Clear cancels the in-flight token, so a superseded turn detects
// its own obsolescence before every state-changing step instead of racing a
// timestamp comparison.
type turnGuard struct {
	mu     sync.Mutex
	active map[string]*turnToken
}

func newTurnGuard() *turnGuard {
	return &turnGuard{active: make(map[string]*turnToken)}
}

// begin derives the turn's context. Starting a new turn for a session
// cancels any previous in-flight turn for the same session.
func (g *turnGuard) begin(ctx context.Context, sessionID string) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithCancel(ctx)
	token := &turnToken{cancel: cancel}

	g.mu.Lock()
	if prev, ok := g.active[sessionID]; ok {
		prev.cancel()
	}
	g.active[sessionID] = token
	g.mu.Unlock()

	return turnCtx, func() {
		g.mu.Lock()
		if g.active[sessionID] == token {
			delete(g.active, sessionID)
		}
		g.mu.Unlock()
		cancel()
	}
}

// clear cancels the session's in-flight turn, if any.
func (g *turnGuard) clear(sessionID string) {
	g.mu.Lock()
	token, ok := g.active[sessionID]
	if ok {
		delete(g.active, sessionID)
	}
	g.mu.Unlock()
	if ok {
		token.cancel()
	}
}
