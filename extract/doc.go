// Package extract turns free-form model output into validated structured data.
//
// Repair and ParseList are pure functions that clean up near-JSON text.
// Retry is the bounded retry loop shared by every structured call. Pipeline
// combines them with an agent crew to split research text into sections.
package extract
