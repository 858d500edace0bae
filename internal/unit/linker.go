package unit

import (
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
)

// HostResolver is the minimal surface the link step needs from a host
// RuntimeContext (spec §4.6 link step / §6): "does this hash exist". The
// internal/host package's RuntimeContext implements this; unit does not
// import host to avoid a cycle.
type HostResolver interface {
	HasFunction(h item.Hash) bool
}

// Link verifies every hash in u.RequiredHashes against either the Unit's
// own function table or the host resolver. Any absent hash produces a
// MissingFunction diagnostic listing every call-site span (spec §6
// end-to-end scenario 6).
func Link(u *Unit, host HostResolver, bag *diag.Bag) {
	for hash, spans := range u.RequiredHashes {
		if _, ok := u.Functions[hash]; ok {
			continue
		}
		if host != nil && host.HasFunction(hash) {
			continue
		}
		d := diag.Diagnostic{
			Severity: diag.SeverityError,
			Kind:     diag.KindMissingFunction,
			Message:  "no function registered for required hash",
		}
		if len(spans) > 0 {
			d.Span = spans[0]
			d.Related = spans[1:]
		}
		bag.Report(d)
	}
}
