// Package intent decides which branch of the conversation graph handles a
// user message.
//
// Classification is a pure function of an Input snapshot: keyword rules are
// evaluated in a fixed order and the first match wins, so the same session
// state and message always produce the same Intent. Matching is substring
// based on the message lowered with Turkish casing rules.
package intent
