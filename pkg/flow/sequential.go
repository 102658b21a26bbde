package flow

import "context"

// Sequential chains primitives: each stage's output feeds the next stage's
// input. Stages run on the calling goroutine; stage i+1 never begins before
// stage i completes.
//
// Every stage is invoked with the Sequential's own derived context, so all
// stage spans are direct children of the Sequential span rather than nested
// under one another. On the first failure the remaining stages are skipped;
// undo actions committed by Compensation-wrapped stages during this
// Sequential are then invoked in reverse order before the original error
// propagates.
type Sequential struct {
	name   string
	stages []Primitive
}

var _ Primitive = (*Sequential)(nil)

// NewSequential chains stages under one name. A Sequential with no stages
// returns its input unchanged.
func NewSequential(name string, stages ...Primitive) *Sequential {
	if name == "" {
		panic("flow: sequential name must not be empty")
	}
	for _, stage := range stages {
		if stage == nil {
			panic("flow: sequential stage must not be nil")
		}
	}
	return &Sequential{name: name, stages: stages}
}

func (s *Sequential) Name() string { return s.name }
func (s *Sequential) Type() string { return TypeSequential }

func (s *Sequential) Execute(ctx context.Context, input any) (any, error) {
	log := compensationLogFrom(ctx)
	mark := 0
	if log != nil {
		mark = log.Len()
	}

	current := input
	for _, stage := range s.stages {
		if err := ctx.Err(); err != nil {
			if log != nil {
				rollback(ctx, log.popAfter(mark))
			}
			return nil, err
		}
		output, err := RunChild(ctx, stage, current)
		if err != nil {
			if log != nil {
				rollback(ctx, log.popAfter(mark))
			}
			return nil, err
		}
		current = output
	}
	return current, nil
}
