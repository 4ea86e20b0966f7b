// Package engine implements a forward-chaining production-rule engine: a
// working memory of typed, property-tracked facts, declarative rules whose
// domains join combinations of facts, and a salience-ordered agenda that
// fires satisfied rule bindings until quiescence.
//
// Matching is incremental. Each assert extends existing partial bindings
// with the new fact rather than rescanning working memory, each retract
// invalidates exactly the bindings that reference the fact, and property
// writes retest only the bindings that read the written property. The engine
// deliberately does not build a compiled discrimination network; it
// maintains per-rule cross-products directly, with property-level dirty
// tracking deciding what to retest.
//
// One Engine is one independent rule set and working memory. Engines hold no
// shared process-wide state and persist nothing. The execution model is
// single-threaded and cooperative: matching, condition evaluation, and
// action execution run to completion on the calling goroutine, and an Engine
// must not be mutated concurrently.
package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Engine is a self-contained rule engine instance.
type Engine struct {
	id string

	rules       []*Rule
	rulesByName map[string]*Rule
	domainless  []*Rule
	// domainTypes counts, per fact type, how many rule domain slots range
	// over it. Cascading auto-insert only applies to these types.
	domainTypes map[string]int

	facts     map[FactID]*Fact
	typeIndex map[string][]*Fact

	// deps maps fact identity -> property -> entries to retest on write.
	deps       map[FactID]map[string]map[retestable]struct{}
	depsOf     map[retestable][]depKey
	typeDeps   map[string]map[retestable]struct{}
	typeDepsOf map[retestable][]string
	byFact     map[FactID]map[retestable]struct{}

	agenda agendaHeap
	frames []*evalFrame

	lastFactID FactID
	lastOrd    uint64
	running    bool
	runID      string

	traceLevel TraceLevel
	tracer     Tracer
}

// Option configures a new Engine.
type Option func(*Engine)

// WithTracer installs the tracer receiving engine events.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithTraceLevel sets the initial trace level.
func WithTraceLevel(lvl TraceLevel) Option {
	return func(e *Engine) { e.traceLevel = lvl }
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		id:          uuid.NewString(),
		rulesByName: make(map[string]*Rule),
		domainTypes: make(map[string]int),
		facts:       make(map[FactID]*Fact),
		typeIndex:   make(map[string][]*Fact),
		deps:        make(map[FactID]map[string]map[retestable]struct{}),
		depsOf:      make(map[retestable][]depKey),
		typeDeps:    make(map[string]map[retestable]struct{}),
		typeDepsOf:  make(map[retestable][]string),
		byFact:      make(map[FactID]map[retestable]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the engine instance identifier carried on trace events.
func (e *Engine) ID() string { return e.id }

// Reset clears working memory, bindings, and the agenda while keeping the
// registered rules. Domainless rules get their single empty binding back.
func (e *Engine) Reset() error {
	for id := range e.facts {
		if err := e.RetractID(id); err != nil {
			return err
		}
	}
	return nil
}

// Context carries one binding's variable-to-fact assignment into condition
// and action code.
type Context struct {
	e     *Engine
	vars  map[string]int
	facts []*Fact
}

func newContext(e *Engine, r *Rule, facts []*Fact) *Context {
	var vars map[string]int
	if r != nil {
		vars = r.varIndex
	}
	return &Context{e: e, vars: vars, facts: facts}
}

// anonContext builds a context for an ad hoc quantifier domain.
func anonContext(e *Engine, domain Domain, facts []*Fact) *Context {
	vars := make(map[string]int, len(domain))
	for i, dv := range domain {
		vars[dv.Name] = i
	}
	return &Context{e: e, vars: vars, facts: facts}
}

// Fact returns the fact bound to a domain variable, or nil if the variable
// is not bound (which only happens for a name outside the declared Uses).
func (c *Context) Fact(name string) *Fact {
	i, ok := c.vars[name]
	if !ok || i >= len(c.facts) {
		return nil
	}
	return c.facts[i]
}

// Get reads a property of the fact bound to a variable.
func (c *Context) Get(varName, prop string) any {
	f := c.Fact(varName)
	if f == nil {
		return nil
	}
	return f.Get(prop)
}

// Set writes a property of the fact bound to a variable.
func (c *Context) Set(varName, prop string, value any) error {
	f := c.Fact(varName)
	if f == nil {
		return errors.Wrapf(ErrInvalidDomainReference, "variable %q is not bound", varName)
	}
	return f.Set(prop, value)
}

// Engine returns the owning engine, for asserting or retracting facts from
// inside an action.
func (c *Context) Engine() *Engine { return c.e }

func (e *Engine) nextOrd() uint64 {
	e.lastOrd++
	return e.lastOrd
}

func joinErrs(errs []error) error {
	var out error
	for _, err := range errs {
		out = errors.CombineErrors(out, err)
	}
	return out
}
