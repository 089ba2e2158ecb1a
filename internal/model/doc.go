// Package model defines the flat, id-referenced records that flow through
// the pipeline: transcript segments, translations, analysis results,
// checkpoints, and export plans. Relationships between records are
// expressed as integer or string ids rather than pointers, so that any
// record can be serialized independently and no cycles can form.
package model
