// Package cv provides the reference collaborator implementations driven by
// the pipeline coordinator: a plain-text extractor, a heuristic field parser,
// a quality scorer, and a JSON artifact emitter. The coordinator depends only
// on the interfaces in internal/pipeline; these implementations are what the
// daemon wires in.
package cv
