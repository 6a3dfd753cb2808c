package pipeline

import (
	"context"

	"vitae/internal/queue"
	"vitae/internal/review"
)

// Operation names used to key circuit breakers and retry history.
const (
	OpExtract = "extract"
	OpParse   = "parse"
	OpEmit    = "emit"
)

// Experience is one employment entry on a parsed document.
type Experience struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Education is one education entry on a parsed document.
type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year,omitempty"`
}

// Record is the structured result of parsing one document. Fields are
// explicit; values the parser could not find stay zero instead of hiding in a
// generic map.
type Record struct {
	Name       string       `json:"name"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Summary    string       `json:"summary,omitempty"`
	Skills     []string     `json:"skills,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
	Education  []Education  `json:"education,omitempty"`
	SourceText string       `json:"-"`
	// Degraded marks a record produced (wholly or partly) by a fallback
	// after the primary collaborator failed. Degraded records never
	// auto-approve.
	Degraded bool `json:"degraded,omitempty"`
}

// Extractor pulls plain text out of a source document. Implementations must
// be idempotent and safe to retry.
type Extractor interface {
	Extract(ctx context.Context, payload queue.Payload) (string, error)
}

// Parser turns extracted text into a structured record. It may call a remote
// inference service; transient, timeout, and rate-limit failures are retried
// by the executor.
type Parser interface {
	Parse(ctx context.Context, text string) (*Record, error)
}

// Scorer produces the quality report for a parsed record. It must be a pure
// function of the record; it is invoked exactly once per attempt chain and
// never retried.
type Scorer interface {
	Score(ctx context.Context, record *Record) (review.QualityReport, error)
}

// Emitter publishes an approved record and returns an artifact reference. It
// runs only after approval.
type Emitter interface {
	Emit(ctx context.Context, record *Record) (string, error)
}

// Collaborators bundles the external implementations the coordinator drives.
type Collaborators struct {
	Extractor Extractor
	Parser    Parser
	Scorer    Scorer
	Emitter   Emitter
}
