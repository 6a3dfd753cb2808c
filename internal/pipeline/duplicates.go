package pipeline

import (
	"sync"

	"vitae/internal/textutil"
)

const (
	// nearDuplicateThreshold is the cosine similarity above which a document
	// is flagged as a likely resubmission of recent work.
	nearDuplicateThreshold = 0.90

	// idfMinimumDocs gates TF-IDF weighting: below this corpus size the IDF
	// estimates are too noisy (a two-document corpus zeroes every shared
	// term), so raw term frequencies are compared instead.
	idfMinimumDocs = 10

	defaultRecentWindow = 64
)

// similarityIndex tracks fingerprints of recently processed documents so the
// pipeline can warn reviewers about near-duplicate submissions. Exact
// duplicates are already rejected by the queue; this catches lightly edited
// resubmissions of the same document.
type similarityIndex struct {
	mu     sync.Mutex
	window int
	corpus *textutil.Corpus
	recent []*textutil.Fingerprint
}

func newSimilarityIndex(window int) *similarityIndex {
	if window <= 0 {
		window = defaultRecentWindow
	}
	return &similarityIndex{
		window: window,
		corpus: textutil.NewCorpus(),
	}
}

// observe records the document and returns the highest similarity against the
// recent window, plus whether it crosses the near-duplicate threshold.
func (s *similarityIndex) observe(text string) (float64, bool) {
	fp := textutil.NewFingerprint(text)
	if fp.TokenCount() == 0 {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var idf map[string]float64
	if s.corpus.DocCount() >= idfMinimumDocs {
		idf = s.corpus.IDF()
	}

	best := 0.0
	probe := fp.WithIDF(idf)
	for _, prev := range s.recent {
		if sim := textutil.CosineSimilarity(probe, prev.WithIDF(idf)); sim > best {
			best = sim
		}
	}

	s.corpus.Add(fp)
	s.recent = append(s.recent, fp)
	if len(s.recent) > s.window {
		s.recent = s.recent[len(s.recent)-s.window:]
	}
	return best, best >= nearDuplicateThreshold
}
