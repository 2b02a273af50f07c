package domain

import "time"

// Common source types. The field is free-form so new evidence channels can be
// added without a schema change; the confidence engine counts distinct values
// when rewarding diversity.
const (
	SourceTypeUser       = "user"
	SourceTypeAgent      = "agent"
	SourceTypeExtraction = "extraction"
	SourceTypeSynthesis  = "synthesis"
)

// ProvenanceEntry records where a piece of evidence for a claim came from.
// A claim carries zero or more of these; they justify its existence and feed
// the confidence engine.
type ProvenanceEntry struct {
	// Source identifies the concrete origin, e.g. "user:alice" or "agent:gpt4".
	Source string `json:"source"`

	Timestamp time.Time `json:"timestamp"`

	// SourceType is the kind of origin, e.g. "user" or "extraction".
	SourceType string `json:"source_type"`

	Rationale string `json:"rationale,omitempty"`
}

func NewProvenanceEntry(source, sourceType string, timestamp time.Time) ProvenanceEntry {
	return ProvenanceEntry{
		Source:     source,
		SourceType: sourceType,
		Timestamp:  timestamp,
	}
}

// WithRationale returns a copy of the entry carrying a reasoning note.
func (p ProvenanceEntry) WithRationale(rationale string) ProvenanceEntry {
	p.Rationale = rationale
	return p
}
