// Package graph is a small typed state-graph engine.
//
// A StateGraph[S] holds named nodes that transform a state value of type S,
// static edges, conditional edges that pick the next node at runtime, and an
// entry point. Compile validates the wiring and returns a StateRunnable that
// runs one node at a time until the path reaches END.
//
//	g := graph.NewStateGraph[*Turn]()
//	g.AddNode("route", "classify the message", route)
//	g.AddNode("answer", "call the model", answer)
//	g.AddConditionalEdge("route", pick)
//	g.AddEdge("answer", graph.END)
//	g.SetEntryPoint("route")
//	runnable, err := g.Compile()
//	out, err := runnable.Invoke(ctx, turn)
//
// A node has at most one successor. Nodes added with AddNodeWithRetry are
// re-run according to their RetryPolicy, nodes added with AddNodeWithTimeout
// get a deadline per attempt, and failures are reported as *NodeError. Panics inside nodes
// are recovered. Listeners observe node lifecycle events.
package graph
