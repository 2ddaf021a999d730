// Package numeric defines the single floating-point precision used across
// the whole pipeline. Every package imports Float instead of hard-coding
// float64, so swapping the alias (e.g. to float32) keeps test expectations
// and fixed-point approximations consistent end-to-end.
package numeric

// Float is the pipeline-wide numeric precision.
type Float = float64
