// Package rules holds the platform capability table and the pure functions
// evaluated over it: media validation, content type selection, settings
// synthesis and advisory recommendations.
//
// Nothing in this package performs I/O after the table is loaded, so every
// function is safe for concurrent use.
package rules
