package registry

import (
	"sort"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// BuildTypeMap builds the event-type -> handler-name routing table
// (§4.3): exactly one handler per declared type, reserved types
// TypeUnknown/TypeMissingKey pass through unchanged. Two handlers
// declaring the same type fails the whole build with
// HandlerTypeConflict (§4.3), the same way §4.5's step 5 refuses an
// ambiguous write rather than picking one silently.
func (r *Registry) BuildTypeMap() (map[string]string, error) {
	claims := map[string][]string{} // type -> claiming handler names, for conflict reporting
	typeMap := map[string]string{}

	names := r.DiscoverHandlers()
	for _, name := range names {
		h := r.handlers[name]
		if h.impl.Projector == nil {
			continue // handler with only commands/job doesn't claim any event type
		}
		for _, t := range h.manifest.EffectiveTypes() {
			claims[t] = append(claims[t], name)
			typeMap[t] = name
		}
	}

	for t, holders := range claims {
		if len(holders) <= 1 {
			continue
		}
		sort.Strings(holders)
		return nil, runtimeerr.NewHandlerTypeConflict(t, holders)
	}

	return typeMap, nil
}
