// Package testparams collects test generation parameters over several chat
// turns.
//
// The flow has three question stages (question types with counts,
// difficulty, audience level) and only moves forward. Each stage's UI prompt
// is handed out once. Replies arrive either as a structured payload keyed by
// soru_turleri, zorluk_seviyesi or ogrenci_seviyesi, or as free text matched
// against keyword tables. A reply the stage cannot use aborts the flow
// rather than silently falling back to defaults.
package testparams
