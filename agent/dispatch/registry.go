package dispatch

import (
	"strings"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

// Registry is a version-scoped name->handler map. The version identifies
// which system-prompt generation the handlers belong to; lookups are plain
// name matches within that scope.
type Registry struct {
	version  string
	handlers map[string]contractx.Handler
}

var _ contractx.HandlerRegistry = (*Registry)(nil)

func NewRegistry(version string) *Registry {
	return &Registry{
		version:  strings.TrimSpace(version),
		handlers: make(map[string]contractx.Handler, 8),
	}
}

func (r *Registry) Version() string {
	return r.version
}

func (r *Registry) Register(name string, handler contractx.Handler) {
	name = strings.TrimSpace(name)
	if name == "" || handler == nil {
		return
	}
	r.handlers[name] = handler
}

func (r *Registry) Handler(name string) (contractx.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
