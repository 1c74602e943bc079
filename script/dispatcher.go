package script

import lua "github.com/yuin/gopher-lua"

// EventDispatcher routes named game events to the Lua callbacks a
// context's script has subscribed, the per-context half of spec.md
// §4.8's subscription-based event routing.
type EventDispatcher struct {
	owner     *lua.LState
	listeners map[string][]*lua.LFunction
}

// NewEventDispatcher creates an empty dispatcher bound to owner.
func NewEventDispatcher(owner *lua.LState) *EventDispatcher {
	return &EventDispatcher{owner: owner, listeners: make(map[string][]*lua.LFunction)}
}

// On registers fn to be called whenever event fires for this context.
func (d *EventDispatcher) On(event string, fn *lua.LFunction) {
	d.listeners[event] = append(d.listeners[event], fn)
}

// Fire invokes every callback registered for event with args. Errors
// from individual callbacks are not propagated — a misbehaving handler
// must not stop delivery to the rest.
func (d *EventDispatcher) Fire(event string, args ...lua.LValue) []error {
	var errs []error
	for _, fn := range d.listeners[event] {
		if err := d.owner.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasListeners reports whether any callback is registered for event,
// which the context manager uses to route FireGameEventToAll only to
// contexts actually subscribed (spec.md §4.8).
func (d *EventDispatcher) HasListeners(event string) bool {
	return len(d.listeners[event]) > 0
}

// Clear drops every registered listener, for context stop/shutdown.
func (d *EventDispatcher) Clear() {
	d.listeners = make(map[string][]*lua.LFunction)
}
