// Command cliplined is the clipline background daemon: it acquires the
// single-instance lock, resumes every incomplete run left over from a
// previous crash or restart, and then waits for a shutdown signal.
package main
