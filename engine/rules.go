package engine

import (
	"github.com/cockroachdb/errors"
)

// Strategy selects how a rule's cross-product is explored. Both strategies
// produce the same bindings; they differ in transient memory profile.
type Strategy int

const (
	// DepthFirst extends one partial binding to completion before starting
	// the next, minimizing simultaneous allocation. This is the default.
	DepthFirst Strategy = iota
	// BreadthFirst extends all partial bindings one variable at a time,
	// bounding exploration depth at the cost of holding more partials at
	// once. Useful for domains whose product is very large.
	BreadthFirst
)

// DomainVar declares one variable of a rule's domain: a name, the fact type
// it ranges over, and an optional per-fact filter applied before the fact
// enters any binding. A filter that reads properties through Get establishes
// dependency edges like a condition does: a fact it rejects is reconsidered
// when a read property later changes. Filters must be free of side effects.
type DomainVar struct {
	Name   string
	Type   string
	Filter func(*Fact) bool
}

// Domain is an ordered domain specification. Order matters: the join engine
// extends partial bindings variable by variable in declaration order.
type Domain []DomainVar

// Condition is one boolean predicate of a rule. Uses statically declares the
// domain variables the predicate reads; the join engine evaluates the
// condition as soon as all of them are bound, pruning dead branches of the
// cross-product early. Conditions must be free of externally visible side
// effects; the engine does not enforce this, and violations yield incorrect
// incremental results.
type Condition struct {
	Uses []string
	Test func(*Context) (bool, error)
}

// Action is a rule's right-hand side. Uses declares the domain variables the
// action reads, for dependency pruning only; the action itself may insert,
// mutate, or retract facts and produce arbitrary external effects.
type Action struct {
	Uses    []string
	Execute func(*Context) error
}

// RuleDef is the declarative input to CreateRule.
type RuleDef struct {
	Name       string
	Salience   int
	Domain     Domain
	Conditions []Condition
	Action     Action
	Strategy   Strategy
}

// Rule is a compiled rule registered with an engine. All fields are fixed at
// creation; per-rule match state and statistics live alongside.
type Rule struct {
	name     string
	salience int
	domain   Domain
	conds    []Condition
	action   Action
	strategy Strategy

	// varIndex maps a domain variable name to its slot.
	varIndex map[string]int
	// condsAt[k] lists the conditions that become fully evaluable once
	// exactly k variables are bound, in declaration order.
	condsAt [][]int

	bindings map[string]*binding
	blocked  map[string]*blockedPartial
	stats    RuleStats
}

// Name returns the rule's unique name.
func (r *Rule) Name() string { return r.name }

// Salience returns the rule's firing priority.
func (r *Rule) Salience() int { return r.salience }

// Domainless reports whether the rule has an empty domain. A domainless rule
// has exactly one (empty) binding and is retested after every fact mutation
// in the system, which can be a performance burden on busy engines.
func (r *Rule) Domainless() bool { return len(r.domain) == 0 }

// CreateRule registers a rule with the engine. Every variable referenced by
// a condition or action must appear in the domain specification, and every
// condition must carry a test function; violations fail with
// ErrInvalidDomainReference. Names are unique per engine instance;
// collisions fail with ErrDuplicateRuleName. Facts already in working memory
// are matched immediately.
func (e *Engine) CreateRule(def RuleDef) (*Rule, error) {
	if def.Name == "" {
		return nil, errors.Wrap(ErrInvalidDomainReference, "rule name is empty")
	}
	if _, taken := e.rulesByName[def.Name]; taken {
		return nil, errors.Wrapf(ErrDuplicateRuleName, "rule %q", def.Name)
	}
	r := &Rule{
		name:     def.Name,
		salience: def.Salience,
		domain:   def.Domain,
		conds:    def.Conditions,
		action:   def.Action,
		strategy: def.Strategy,
		varIndex: make(map[string]int, len(def.Domain)),
		bindings: make(map[string]*binding),
		blocked:  make(map[string]*blockedPartial),
	}
	for i, dv := range def.Domain {
		if dv.Name == "" || dv.Type == "" {
			return nil, errors.Wrapf(ErrInvalidDomainReference, "rule %q: domain slot %d needs a name and a type", def.Name, i)
		}
		if _, dup := r.varIndex[dv.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidDomainReference, "rule %q: duplicate domain variable %q", def.Name, dv.Name)
		}
		r.varIndex[dv.Name] = i
	}
	r.condsAt = make([][]int, len(def.Domain)+1)
	for ci, c := range def.Conditions {
		if c.Test == nil {
			return nil, errors.Wrapf(ErrInvalidDomainReference, "rule %q: condition %d has no test", def.Name, ci)
		}
		depth, err := r.readyDepth(c.Uses)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %q: condition %d", def.Name, ci)
		}
		r.condsAt[depth] = append(r.condsAt[depth], ci)
	}
	if _, err := r.readyDepth(def.Action.Uses); err != nil {
		return nil, errors.Wrapf(err, "rule %q: action", def.Name)
	}

	e.rules = append(e.rules, r)
	e.rulesByName[r.name] = r
	for _, dv := range r.domain {
		e.domainTypes[dv.Type]++
	}
	if r.Domainless() {
		e.domainless = append(e.domainless, r)
	}
	e.emit(TraceEvent{Kind: TraceRuleCreated, Rule: r.name})

	// Match against facts already asserted.
	if err := e.generate(r, [][]*Fact{nil}, -1, nil); err != nil {
		return r, err
	}
	return r, nil
}

// readyDepth returns the number of bound variables needed before every name
// in uses is available, validating the references against the domain.
func (r *Rule) readyDepth(uses []string) (int, error) {
	depth := 0
	for _, name := range uses {
		slot, ok := r.varIndex[name]
		if !ok {
			return 0, errors.Wrapf(ErrInvalidDomainReference, "variable %q", name)
		}
		if slot+1 > depth {
			depth = slot + 1
		}
	}
	return depth, nil
}

// Rule returns a registered rule by name.
func (e *Engine) Rule(name string) (*Rule, bool) {
	r, ok := e.rulesByName[name]
	return r, ok
}

// Rules returns all registered rules in creation order.
func (e *Engine) Rules() []*Rule {
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
