package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

// Board holds one independent workflow per feature card.
type Board struct {
	order     []domain.RiskType
	workflows map[domain.RiskType]*Workflow
	closeOnce sync.Once
}

// NewBoard builds a workflow for every feature in catalog. opts apply to each
// workflow.
func NewBoard(catalog []domain.Feature, cfg Config, clients Clients, opts ...Option) (*Board, error) {
	b := &Board{workflows: make(map[domain.RiskType]*Workflow, len(catalog))}
	for _, f := range catalog {
		if _, dup := b.workflows[f.RiskType]; dup {
			return nil, fmt.Errorf("duplicate feature for risk type %q", f.RiskType)
		}
		b.order = append(b.order, f.RiskType)
		b.workflows[f.RiskType] = New(f, cfg, clients, opts...)
	}
	return b, nil
}

func (b *Board) Workflow(rt domain.RiskType) (*Workflow, bool) {
	w, ok := b.workflows[rt]
	return w, ok
}

func (b *Board) Trigger(ctx context.Context, rt domain.RiskType) (bool, error) {
	w, ok := b.workflows[rt]
	if !ok {
		return false, fmt.Errorf("no feature for risk type %q", rt)
	}
	return w.Trigger(ctx), nil
}

// Views returns every card in catalogue order.
func (b *Board) Views() []View {
	out := make([]View, 0, len(b.order))
	for _, rt := range b.order {
		out = append(out, b.workflows[rt].View())
	}
	return out
}

// Busy reports whether any card has a run in flight.
func (b *Board) Busy() bool {
	for _, w := range b.workflows {
		if Busy(w.State()) {
			return true
		}
	}
	return false
}

// Close tears down every workflow on the board.
func (b *Board) Close() {
	b.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for _, w := range b.workflows {
			wg.Add(1)
			go func(w *Workflow) {
				defer wg.Done()
				w.Close()
			}(w)
		}
		wg.Wait()
	})
}
