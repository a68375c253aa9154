package agent

import (
	"context"
	"log"

	"github.com/actorxio/actorx/actorid"
)

// Multicast is the fan-out Agent variant: an ordered list of child
// Agents. Reading ID()/Kind() on a Multicast is a programmer error and
// panics.
//
// Invoke returns the first child error and stops fanning out further:
// there is one response value to produce, so there is nothing useful
// to do with the rest once one has failed. Post has no return channel,
// so it keeps fanning out to every child for side effects even if an
// earlier child errored, logging each failure and returning the first
// one to the caller for visibility.
type Multicast struct {
	children []Agent
}

// NewMulticast builds a Multicast over children, in the given order.
func NewMulticast(children []Agent) *Multicast {
	return &Multicast{children: children}
}

func (m *Multicast) ID() actorid.ActorID {
	panic("agent: Multicast has no single ActorID")
}

func (m *Multicast) Kind() actorid.Kind {
	panic("agent: Multicast has no single Kind")
}

func (m *Multicast) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	var out []byte
	for _, child := range m.children {
		resp, err := child.Invoke(ctx, op, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, resp...)
	}
	return out, nil
}

func (m *Multicast) Post(ctx context.Context, op string, payload []byte) error {
	var firstErr error
	for _, child := range m.children {
		if err := child.Post(ctx, op, payload); err != nil {
			log.Printf("multicast: child %s post error: %v", child.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Multicast) Deactivate(ctx context.Context) error {
	var firstErr error
	for _, child := range m.children {
		if err := child.Deactivate(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
