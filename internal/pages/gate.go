package pages

import (
	"context"
	"errors"

	"voicecard/internal/domain"
)

type State int

const (
	StateLive State = iota
	StateDeleted
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDeleted:
		return "deleted"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type Decision struct {
	State State
	Page  domain.AudioPage
}

// Gate decides how a page is presented at view time.
type Gate struct {
	m    *Manager
	demo *Demo
}

func NewGate(m *Manager, demo *Demo) *Gate {
	return &Gate{m: m, demo: demo}
}

// Resolve is the single lookup path for viewers: the demo code yields a fresh
// demo page, anything else a plain lookup.
func (g *Gate) Resolve(ctx context.Context, code string) (domain.AudioPage, error) {
	if g.demo != nil && g.demo.IsDemo(code) {
		return g.demo.GetOrCreate(ctx)
	}
	return g.m.Get(ctx, NormalizeCode(code))
}

// Decide returns an error only when storage fails. A page that reached its
// limit but is still stored is reported as destroyed.
func (g *Gate) Decide(ctx context.Context, code string) (Decision, error) {
	page, err := g.Resolve(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return Decision{State: StateDeleted}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if page.Destroyed(g.m.now()) {
		return Decision{State: StateDestroyed, Page: page}, nil
	}
	return Decision{State: StateLive, Page: page}, nil
}
