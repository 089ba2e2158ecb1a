// Package translate implements TranslationBatcher (spec §4.6): token-aware
// chunking of transcript segments with overlap for context, dedup-by-id
// merge across chunks, per-segment retry on chunk failure, and quality
// validation of the resulting translations.
//
// Chunking and quality checks are plain functions with no I/O; Batcher
// wires them to an llmrouter.Router so the batching policy itself stays
// testable without a live provider.
package translate
