// Package app contains the application lifecycle: it loads the run file,
// resolves the feature variants, wires the candidate store, extraction tool,
// ledger and progress reporters together, and generates one dataset per
// variant. It is decoupled from any specific entrypoint like a CLI.
package app
