package flow

import (
	"context"
	"sync"
)

// BranchResult is the outcome of one Parallel branch: a value or an error,
// never both.
type BranchResult struct {
	Value any
	Err   error
}

// Parallel fans the same input out to every branch concurrently, one
// goroutine per branch, and collects the outcomes into a []BranchResult
// ordered by branch position regardless of completion order. Each branch
// executes under an independently derived sibling context.
//
// By default the composition itself succeeds and hands every branch
// outcome back to the caller; callers wanting a merged value apply their
// own aggregation stage afterward. With FailFast set, the first branch
// error cancels the remaining branches and becomes the composition's
// error.
type Parallel struct {
	name     string
	branches []Primitive

	// FailFast makes the first branch error cancel the siblings and fail
	// the composition. Default false: collect all results.
	FailFast bool
}

var _ Primitive = (*Parallel)(nil)

// NewParallel fans input out to branches under one name.
func NewParallel(name string, branches ...Primitive) *Parallel {
	if name == "" {
		panic("flow: parallel name must not be empty")
	}
	for _, branch := range branches {
		if branch == nil {
			panic("flow: parallel branch must not be nil")
		}
	}
	return &Parallel{name: name, branches: branches}
}

func (p *Parallel) Name() string { return p.name }
func (p *Parallel) Type() string { return TypeParallel }

func (p *Parallel) Execute(ctx context.Context, input any) (any, error) {
	if len(p.branches) == 0 {
		return []BranchResult{}, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if p.FailFast {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	results := make([]BranchResult, len(p.branches))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i, branch := range p.branches {
		wg.Add(1)
		go func(i int, branch Primitive) {
			defer wg.Done()
			output, err := RunChild(runCtx, branch, input)
			results[i] = BranchResult{Value: output, Err: err}
			if err != nil && p.FailFast {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(i, branch)
	}
	wg.Wait()

	if p.FailFast && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
