// Package diag implements the structured, append-only diagnostics channel
// described in spec §6–§7: every stage of the pipeline reports through a
// Bag rather than returning early, so compilation proceeds as far as
// error_recovery allows before a Unit is refused.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// SourceID identifies one source text registered with the pipeline. It is
// opaque outside this package; see internal/lexer for how sources acquire
// one (a UUID-backed registry, not a bare counter, so diagnostics collected
// across parallel test runs never collide).
type SourceID string

// Span is a half-open byte range within a single source.
type Span struct {
	Source SourceID
	Start  uint32
	End    uint32
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d..%d", s.Source, s.Start, s.End)
}

// Severity classifies a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Kind is a taxonomy tag, one per distinct failure/warning mode named in
// spec §7. Kind values are grouped by compiler stage so a Bag can be
// filtered by stage without string-matching messages.
type Kind string

const (
	// Lex errors.
	KindUnterminatedLiteral Kind = "unterminated-literal"
	KindBadEscape           Kind = "bad-escape"
	KindBadLexerMode        Kind = "bad-lexer-mode"
	KindUnexpectedChar      Kind = "unexpected-character"

	// Parse errors.
	KindExpected               Kind = "expected"
	KindUnsupportedPattern     Kind = "unsupported-pattern"
	KindPrecedenceGroupNeeded  Kind = "precedence-group-required"
	KindDuplicateModifier      Kind = "duplicate-modifier"

	// Resolve errors.
	KindMissingItem        Kind = "missing-item"
	KindVisibilityViolation Kind = "visibility-violation"
	KindCyclicImport        Kind = "cyclic-import"
	KindAmbiguousImport     Kind = "ambiguous-import"
	KindDuplicateDefinition Kind = "duplicate-definition"
	KindConflictingHash     Kind = "conflicting-hash"

	// Assembly errors.
	KindMissingLabel          Kind = "missing-label"
	KindUnsupportedArgCount   Kind = "unsupported-argument-count"
	KindConstFnArgMismatch    Kind = "const-fn-argument-mismatch"
	KindNestedTestOrBench     Kind = "nested-test-or-bench"
	KindInstanceFnOutsideImpl Kind = "instance-fn-outside-impl"
	KindConstAsyncConflict    Kind = "const-async-conflict"
	KindLetPatternMightPanic  Kind = "let-pattern-might-panic"
	KindIrBudgetExceeded      Kind = "ir-budget-exceeded"

	// Link errors.
	KindMissingFunction  Kind = "missing-function"
	KindConstantConflict Kind = "constant-conflict"
	KindRttiConflict     Kind = "rtti-conflict"
)

// Diagnostic is one entry of the append-only channel.
type Diagnostic struct {
	Severity Severity
	Span     Span
	Kind     Kind
	Message  string
	// Spans additionally implicated, e.g. every call-site for a
	// MissingFunction diagnostic (spec §4.6 link step).
	Related []Span
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s (%s)", d.Span, d.Severity, d.Message, d.Kind)
}

// Bag accumulates diagnostics across a whole compile. It never discards: a
// full compile is only abandoned by the caller inspecting HasErrors after
// the pipeline has run as far as it can.
type Bag struct {
	entries []Diagnostic
}

// Errorf appends an error-severity diagnostic.
func (b *Bag) Errorf(span Span, kind Kind, format string, args ...any) {
	b.entries = append(b.entries, Diagnostic{
		Severity: SeverityError,
		Span:     span,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warnf appends a warning-severity diagnostic.
func (b *Bag) Warnf(span Span, kind Kind, format string, args ...any) {
	b.entries = append(b.entries, Diagnostic{
		Severity: SeverityWarning,
		Span:     span,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Report appends an already-built Diagnostic (used when Related spans must
// be attached, e.g. MissingFunction).
func (b *Bag) Report(d Diagnostic) {
	b.entries = append(b.entries, d)
}

// All returns every diagnostic reported so far, in report order.
func (b *Bag) All() []Diagnostic {
	return b.entries
}

// HasErrors reports whether any error-severity diagnostic was reported.
func (b *Bag) HasErrors() bool {
	for _, d := range b.entries {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err collapses the bag into a single Go error (wrapping the first error
// diagnostic with a stack trace via pkg/errors) for callers that just want
// a pass/fail result, while the full Bag remains available for detailed
// reporting.
func (b *Bag) Err() error {
	for _, d := range b.entries {
		if d.Severity == SeverityError {
			return errors.WithStack(d)
		}
	}
	return nil
}
