// Package adapters implements the narrow external collaborator contracts
// spec §6 defines: Fetcher, AudioExtractor, Transcriber, LLMProvider,
// SubtitleWriter, and VideoEditor. Every adapter is a thin wrapper around a
// subprocess or HTTP call; policy (retry, routing, resource admission,
// checkpointing) lives entirely in the calling packages.
package adapters
