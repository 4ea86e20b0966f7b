package engine

import (
	"go.uber.org/zap"
)

// TraceLevel controls how much of the engine's internal activity is reported
// to the configured Tracer. Levels are cumulative.
type TraceLevel int

const (
	// TraceOff disables tracing entirely.
	TraceOff TraceLevel = 0
	// TraceRuns reports run start/end and rule fires.
	TraceRuns TraceLevel = 1
	// TraceAgenda adds activations, deactivations, rule creation and fact
	// lifecycle events.
	TraceAgenda TraceLevel = 2
	// TraceMatching adds binding formation, property mutations and
	// individual condition tests.
	TraceMatching TraceLevel = 3
)

// TraceKind identifies the engine event carried by a TraceEvent.
type TraceKind string

const (
	TraceRunStart     TraceKind = "run_start"
	TraceRunEnd       TraceKind = "run_end"
	TraceRuleFire     TraceKind = "rule_fire"
	TraceActivation   TraceKind = "activation"
	TraceDeactivation TraceKind = "deactivation"
	TraceRuleCreated  TraceKind = "rule_created"
	TraceFactAssert   TraceKind = "fact_assert"
	TraceFactRetract  TraceKind = "fact_retract"
	TraceBindFormed   TraceKind = "binding_formed"
	TraceBindUnformed TraceKind = "binding_unformed"
	TracePropWrite    TraceKind = "property_write"
	TraceCondTest     TraceKind = "condition_test"
)

// TraceEvent is a single observability event emitted by the engine. Fields
// are populated as applicable to the kind; unused fields are zero.
type TraceEvent struct {
	Kind     TraceKind
	EngineID string
	RunID    string
	Rule     string
	FactID   FactID
	FactType string
	Property string
	Binding  string
	Passed   bool
	Fires    int
}

// Tracer receives engine events. Implementations must be cheap; the engine
// calls Trace synchronously from the hot path when tracing is enabled.
type Tracer interface {
	Trace(ev TraceEvent)
}

// minLevel maps each event kind to the lowest trace level that reports it.
var minLevel = map[TraceKind]TraceLevel{
	TraceRunStart:     TraceRuns,
	TraceRunEnd:       TraceRuns,
	TraceRuleFire:     TraceRuns,
	TraceActivation:   TraceAgenda,
	TraceDeactivation: TraceAgenda,
	TraceRuleCreated:  TraceAgenda,
	TraceFactAssert:   TraceAgenda,
	TraceFactRetract:  TraceAgenda,
	TraceBindFormed:   TraceMatching,
	TraceBindUnformed: TraceMatching,
	TracePropWrite:    TraceMatching,
	TraceCondTest:     TraceMatching,
}

// SetTraceLevel adjusts the engine's trace verbosity. Level 0 disables
// tracing, level 3 reports every condition test and property write.
func (e *Engine) SetTraceLevel(lvl TraceLevel) {
	e.traceLevel = lvl
}

// emit sends an event to the tracer if the current level covers its kind.
func (e *Engine) emit(ev TraceEvent) {
	if e.tracer == nil || e.traceLevel < minLevel[ev.Kind] {
		return
	}
	ev.EngineID = e.id
	ev.RunID = e.runID
	e.tracer.Trace(ev)
}

// ZapTracer forwards engine events to a zap logger.
type ZapTracer struct {
	log *zap.Logger
}

// NewZapTracer wraps a zap logger as a Tracer.
func NewZapTracer(log *zap.Logger) *ZapTracer {
	return &ZapTracer{log: log}
}

// Trace implements Tracer.
func (z *ZapTracer) Trace(ev TraceEvent) {
	fields := []zap.Field{
		zap.String("engine", ev.EngineID),
	}
	if ev.RunID != "" {
		fields = append(fields, zap.String("run", ev.RunID))
	}
	if ev.Rule != "" {
		fields = append(fields, zap.String("rule", ev.Rule))
	}
	if ev.FactID != 0 {
		fields = append(fields, zap.Int64("fact", int64(ev.FactID)))
	}
	if ev.FactType != "" {
		fields = append(fields, zap.String("type", ev.FactType))
	}
	if ev.Property != "" {
		fields = append(fields, zap.String("property", ev.Property))
	}
	if ev.Binding != "" {
		fields = append(fields, zap.String("binding", ev.Binding))
	}
	switch ev.Kind {
	case TraceCondTest:
		fields = append(fields, zap.Bool("passed", ev.Passed))
	case TraceRunEnd:
		fields = append(fields, zap.Int("fires", ev.Fires))
	}
	z.log.Debug(string(ev.Kind), fields...)
}
