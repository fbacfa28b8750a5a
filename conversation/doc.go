// Package conversation drives one chat turn at a time through a state graph.
//
// Each session owns a State: the message history, the routing flags (a
// pending confirmation or an in-progress test parameter flow), the last
// research result and the generated test. A turn classifies the user's
// message with an intent.Router and follows one branch of the graph:
//
//	classify ─┬─ research ─ present_research
//	          ├─ ask_confirmation
//	          ├─ confirm ─ research ─ present_research
//	          ├─ rag_search ─ respond
//	          ├─ no_document
//	          ├─ check_document ─ ask_params
//	          ├─ collect_params ─ generate_test ─ present_test
//	          └─ respond
//
// A turn produces at most one assistant message. Turns that only move the
// parameter flow forward answer through events instead.
//
// Session serializes turns and persists them through a store.Store; Registry
// keeps the live sessions of a process.
package conversation
