package fsm

import "scrubcore.dev/ports"

// Engine drives the Table over a Context, one tick at a time.
type Engine struct {
	table   Table
	current ports.State
}

// NewEngine constructs an Engine over table, starting at startState. It
// does not call any enter hook; call Start for that.
func NewEngine(table Table, startState ports.State) *Engine {
	return &Engine{table: table, current: startState}
}

// State returns the current state.
func (e *Engine) State() ports.State {
	return e.current
}

// Start invokes the initial state's on-enter hook, if any.
func (e *Engine) Start(ctx *Context) {
	if enter := e.table[e.current].OnEnter; enter != nil {
		enter(ctx)
	}
}

// Tick increments the global tick counter and ctx's ticks-in-state, calls
// the current state's on-update, and — if it requests a transition — runs
// the exit/enter pair and resets ticks-in-state. It returns whether a
// transition occurred.
func (e *Engine) Tick(ctx *Context) bool {
	ctx.TotalTicks++
	ctx.TicksInState++

	desc := e.table[e.current]
	next, transition := desc.OnUpdate(ctx)
	if !transition {
		return false
	}
	e.transitionTo(ctx, next)
	return true
}

// ForceTransition performs the exit/enter pair unconditionally, skipping
// the current state's on-update return. Used by the safety-fault override
// path and by RPC administrative commands (ForceState, StopScrub).
func (e *Engine) ForceTransition(ctx *Context, next ports.State) {
	e.transitionTo(ctx, next)
}

func (e *Engine) transitionTo(ctx *Context, next ports.State) {
	if exit := e.table[e.current].OnExit; exit != nil {
		exit(ctx)
	}
	e.current = next
	ctx.TicksInState = 0
	if enter := e.table[e.current].OnEnter; enter != nil {
		enter(ctx)
	}
}
