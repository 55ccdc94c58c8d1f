// Package core implements the product catalog import pipeline: CSV parsing
// with delimiter sniffing, per-row validation and transformation driven by
// caller-supplied field mappings, batched persistence, and per-session
// progress and log aggregation.
//
// The package has no HTTP dependencies. All work is driven through Service,
// which owns session lifecycle (start, progress subscription, cancellation,
// result retrieval) and limits concurrent imports.
package core
