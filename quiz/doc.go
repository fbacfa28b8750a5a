// Package quiz generates tests from an indexed document.
//
// Each requested question type gets its own writer agent running on the
// shared agent pool, bounded by the same retry loop as report structuring.
// Results are merged, duplicate questions removed and every question scored.
package quiz
