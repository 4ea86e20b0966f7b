package engine

import (
	"github.com/cockroachdb/errors"
)

// Definition errors are raised synchronously at rule-creation time. The
// engine remains usable after a failed CreateRule.
var (
	// ErrDuplicateRuleName is returned when a rule name is already taken
	// within this engine instance.
	ErrDuplicateRuleName = errors.New("duplicate rule name")

	// ErrInvalidDomainReference is returned when a condition or action
	// declares a variable that does not appear in the rule's domain.
	ErrInvalidDomainReference = errors.New("condition or action references undeclared domain variable")
)

// Identity errors cover fact lifecycle misuse. The policy here is strict and
// consistent: unknown facts are reported, never silently ignored.
var (
	// ErrUnknownFact is returned when retracting a fact that is not in
	// working memory, or when operating on a fact owned by another engine.
	ErrUnknownFact = errors.New("unknown fact")

	// ErrDuplicateAssert is returned when the same fact identity is
	// asserted under a conflicting type.
	ErrDuplicateAssert = errors.New("fact already asserted with a different type")
)

// ErrReentrantRun is returned when Run is called while a run loop is already
// draining the agenda on this engine.
var ErrReentrantRun = errors.New("run loop already active")
