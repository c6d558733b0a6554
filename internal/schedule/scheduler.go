// Package schedule implements the Tick Scheduler (§4.6): advancing time
// and driving every handler's declared job, in handler-name lexicographic
// order so behavior is reproducible across runs. Grounded on go-crablet's
// own deterministic-ordering convention (DCB queries always apply a
// stable ORDER BY) applied here to job execution order instead of event
// replay order.
package schedule

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/quietcore/runtime/internal/command"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/runtimeerr"
)

// Scheduler drives jobs on each tick (§4.6).
type Scheduler struct {
	registry *registry.Registry
	executor *command.Executor
	log      *obslog.Logger
}

func New(r *registry.Registry, exec *command.Executor, log *obslog.Logger) *Scheduler {
	return &Scheduler{registry: r, executor: exec, log: log}
}

// TickResult reports which jobs ran and which were skipped due to
// failure, for callers (tests, cmd/runtimed) that want to observe one
// tick's outcome without re-deriving it from logs.
type TickResult struct {
	Ran    []string
	Failed []string
}

// Tick runs every handler's declared job once, in lexicographic handler
// name order (§4.6 "Ordering"). A job that fails is logged and skipped;
// the remaining jobs still run (§4.6 "A job that raises is logged and
// skipped; other jobs still run").
func (s *Scheduler) Tick(ctx context.Context, nowMs int64) TickResult {
	var tickErr error
	ctx, end := obslog.StartSpan(ctx, "schedule.Tick")
	defer end(&tickErr)

	var result TickResult
	for _, handlerName := range s.registry.DiscoverHandlers() {
		jobCommand, hasJob := s.registry.Job(handlerName)
		if !hasJob {
			continue
		}
		obslog.SpanFromContext(ctx).SetAttributes(attribute.String("schedule.job", handlerName))
		input := map[string]any{"time_now_ms": nowMs}
		if _, err := s.executor.Run(ctx, handlerName, jobCommand, input, nowMs); err != nil {
			result.Failed = append(result.Failed, handlerName)
			tickErr = err
			s.log.TaxonomyEntry("schedule.Tick", runtimeerr.JobError,
				runtimeerr.New(runtimeerr.JobError, "schedule.Tick", err))
			continue
		}
		result.Ran = append(result.Ran, handlerName)
	}
	return result
}
