// Command clipline is the operator CLI for the clip pipeline: start a run,
// resume one from checkpoint, inspect status, re-export produced files, and
// manage configuration.
package main
