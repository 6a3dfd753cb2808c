package textutil

import "math"

// Corpus accumulates document frequencies across processed documents so IDF
// weighting can discount the phrasing that nearly every resume shares.
type Corpus struct {
	docs int
	freq map[string]int
}

func NewCorpus() *Corpus {
	return &Corpus{freq: make(map[string]int)}
}

// Add registers the distinct terms of one document.
func (c *Corpus) Add(fp *Fingerprint) {
	if c == nil || fp == nil {
		return
	}
	c.docs++
	for term := range fp.weights {
		c.freq[term]++
	}
}

// DocCount reports how many documents have been added.
func (c *Corpus) DocCount() int {
	if c == nil {
		return 0
	}
	return c.docs
}

// IDF returns log((N+1)/(1+df)) per term. A term present in every document
// weighs exactly zero.
func (c *Corpus) IDF() map[string]float64 {
	if c == nil || c.docs == 0 {
		return nil
	}
	idf := make(map[string]float64, len(c.freq))
	n := float64(c.docs)
	for term, df := range c.freq {
		idf[term] = math.Log((n + 1) / (1 + float64(df)))
	}
	return idf
}
