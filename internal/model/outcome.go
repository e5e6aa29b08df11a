package model

// Outcome is the validation result for one reference.
// The zero value is a broken outcome with no reason; use Valid or Broken
// to construct outcomes.
type Outcome struct {
	// Valid is true when the reference resolves.
	Valid bool `json:"valid"`

	// Reason describes why the reference is broken.
	// It is empty for valid outcomes.
	Reason string `json:"reason,omitempty"`
}

// Valid returns an outcome for a reference that resolves.
func Valid() Outcome {
	return Outcome{Valid: true}
}

// Broken returns an outcome for a reference that does not resolve.
func Broken(reason string) Outcome {
	return Outcome{Valid: false, Reason: reason}
}

// String returns "valid" or the failure reason.
func (o Outcome) String() string {
	if o.Valid {
		return "valid"
	}
	return o.Reason
}

// citation identifies one reference as cited by one document.
type citation struct {
	ref string
	doc string
}

// Outcomes stores validation outcomes for a single run.
//
// Remote and other-scheme references are validated once per distinct
// reference and stored by reference. Local references depend on the citing
// document's directory, so they are stored per citation. Each slot is written
// exactly once; writing a slot twice panics because it means the dispatcher
// validated the same reference twice.
type Outcomes struct {
	byRef      map[string]Outcome
	byCitation map[citation]Outcome
}

// NewOutcomes creates an empty outcome store.
func NewOutcomes() *Outcomes {
	return &Outcomes{
		byRef:      make(map[string]Outcome),
		byCitation: make(map[citation]Outcome),
	}
}

// SetShared records the outcome of a reference that is independent of the
// citing document.
func (o *Outcomes) SetShared(ref string, outcome Outcome) {
	if _, ok := o.byRef[ref]; ok {
		panic("model: outcome for reference " + ref + " written twice")
	}
	o.byRef[ref] = outcome
}

// SetCitation records the outcome of a reference as cited by doc.
func (o *Outcomes) SetCitation(ref, doc string, outcome Outcome) {
	key := citation{ref: ref, doc: doc}
	if _, ok := o.byCitation[key]; ok {
		panic("model: outcome for reference " + ref + " in " + doc + " written twice")
	}
	o.byCitation[key] = outcome
}

// Lookup returns the outcome that applies to ref as cited by doc.
// Per-citation outcomes take precedence over shared ones.
func (o *Outcomes) Lookup(ref, doc string) (Outcome, bool) {
	if out, ok := o.byCitation[citation{ref: ref, doc: doc}]; ok {
		return out, true
	}
	out, ok := o.byRef[ref]
	return out, ok
}

// Len returns the number of recorded outcomes.
func (o *Outcomes) Len() int {
	return len(o.byRef) + len(o.byCitation)
}
