// Package checkpoint persists per-run pipeline state to disk so an
// interrupted run can resume from its last completed stage boundary.
//
// A Store instance owns one run's checkpoint file plus a sibling lock file
// held for the process lifetime of Open; a second process attempting to
// open the same run receives a corrupt_state-classified error rather than
// racing writes. Writes are atomic (write-to-temp, fsync, rename) so a crash
// mid-save never leaves a half-written checkpoint behind.
package checkpoint
