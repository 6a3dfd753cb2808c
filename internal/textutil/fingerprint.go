// Package textutil holds the tokenization and similarity primitives behind
// document scoring and near-duplicate detection, plus the sanitizers used for
// artifact naming. Fingerprints are normalized term-frequency vectors; two
// resumes that read the same compare close to 1.0 regardless of length.
package textutil

import (
	"math"
	"strings"
)

// minTokenLength drops connective noise ("a", "of", "to") before weighing.
const minTokenLength = 3

// Tokenize lowercases text and splits it on runs of non-alphanumeric
// characters, discarding tokens shorter than minTokenLength. Note that this
// also discards two-letter skill names ("Go", "R"); the fingerprint measures
// prose similarity, not skill extraction.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		if r >= 'a' && r <= 'z' {
			return false
		}
		return r < '0' || r > '9'
	})
	terms := fields[:0]
	for _, token := range fields {
		if len(token) < minTokenLength {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Fingerprint is a term-frequency vector over one document, with its
// Euclidean norm precomputed for similarity comparisons.
type Fingerprint struct {
	weights map[string]float64
	norm    float64
}

// NewFingerprint builds a raw term-frequency fingerprint for text. It returns
// nil when no token survives filtering, so blank or degenerate documents
// never compare as similar to anything.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	weights := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		weights[token]++
	}
	return newFingerprint(weights)
}

func newFingerprint(weights map[string]float64) *Fingerprint {
	if len(weights) == 0 {
		return nil
	}
	var sum float64
	for _, w := range weights {
		sum += w * w
	}
	return &Fingerprint{weights: weights, norm: math.Sqrt(sum)}
}

// TokenCount reports the number of distinct terms in the document.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.weights)
}

// WithIDF reweights each term by its inverse document frequency so that
// section boilerplate shared by most resumes stops dominating the vector.
// Zero-weight terms are dropped; a document left with nothing comes back nil.
// Terms the corpus has never seen keep their raw frequency.
func (f *Fingerprint) WithIDF(idf map[string]float64) *Fingerprint {
	if f == nil || len(idf) == 0 {
		return f
	}
	weights := make(map[string]float64, len(f.weights))
	for term, w := range f.weights {
		if scale, ok := idf[term]; ok {
			w *= scale
		}
		if w == 0 {
			continue
		}
		weights[term] = w
	}
	return newFingerprint(weights)
}

// CosineSimilarity compares two fingerprints, returning a value in [0, 1].
// Nil or zero-norm fingerprints compare as 0 to everything.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	if len(b.weights) < len(a.weights) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a.weights {
		if other, ok := b.weights[term]; ok {
			dot += w * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
