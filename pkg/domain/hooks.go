package domain

import "context"

// LifecycleHooks defines callbacks for loop observability. Any field may be nil.
type LifecycleHooks struct {
	OnAction    func(context.Context, Action)
	OnExecution func(context.Context, ExecutionRecord)
	OnFinish    func(context.Context, *LoopResult)
}
