// Researchchat is a multi-agent research and study assistant.
//
// A user chats with the assistant in Turkish. Each message is classified
// into an intent and routed through a state graph:
//
//   - plain questions are answered by the language model, with the
//     findings of an earlier research run or matching document passages
//     added to the prompt when they apply;
//   - research requests start a crew of agents that searches the web and
//     YouTube, structures the findings into sections, expands every section
//     and writes a markdown report, saved as JSON and HTML artifacts;
//   - test requests collect question types, difficulty and student level in
//     three steps, then generate questions from the uploaded documents with
//     one agent per question type.
//
// Uploaded PDF and text files are split into chunks and indexed per session
// in a persistent vector store. Sessions, messages and document records are
// kept in SQLite, Postgres, Redis or memory.
//
// # Packages
//
//   - graph: typed state graph engine with conditional edges and listeners
//   - agent: model calls, tool loop, crews and the bounded worker pool
//   - intent: keyword intent router
//   - testparams: three-step test parameter collector
//   - extract: JSON extraction with repair and retries
//   - research: the research crew coordinator
//   - report: research artifacts
//   - quiz: question generation
//   - rag: per-session document index
//   - conversation: the chat graph, sessions and the session registry
//   - store: conversation persistence backends
//   - event: progress notifications and the outbound queue
//   - server: HTTP and WebSocket API
//   - metrics, config, log: ambient infrastructure
//
// The cmd/researchchat command serves the API, runs a terminal chat and
// ingests documents:
//
//	researchchat serve --addr :8000
//	researchchat chat --session <id>
//	researchchat ingest --session <id> notlar.pdf
package researchchat
