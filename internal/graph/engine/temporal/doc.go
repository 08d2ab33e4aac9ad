// Package temporal implements the chatagent workflow engine adapter backed by
// Temporal (https://temporal.io). It satisfies the generic engine.Engine
// interface defined in internal/graph/engine, letting the staged execution
// graph run as a durable workflow without the graph package importing the
// Temporal SDK directly.
//
// # Why Temporal?
//
// A session run through the 18-node staged graph can span minutes to days: it
// waits on LLM calls, platform API calls, and human-in-the-loop signals
// (pause/resume/select_target/review). Temporal durably persists workflow
// state across process restarts and replays the workflow from event history
// to resume deterministically.
//
// # Constructing an Engine
//
//	eng, err := temporal.New(temporal.Options{
//	    ClientOptions: &client.Options{
//	        HostPort:  "temporal:7233",
//	        Namespace: "default",
//	    },
//	    WorkerOptions: temporal.WorkerOptions{
//	        TaskQueue: "chatagent.session",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
// # Worker vs Client Mode
//
// The same engine can operate in two modes: worker mode polls the task queue
// and executes the staged graph locally; client mode only submits workflows
// (a process that starts a session this way runs none of its nodes
// in-process). cmd/chatagent uses neither: it runs the in-memory engine.
//
// # Workflow Determinism
//
// The staged graph's workflow function must be deterministic: given the same
// inputs and activity results, it must produce the same execution sequence.
// WorkflowContext exposes only deterministic operations (Now, ExecuteActivity,
// SignalChannel); LLM calls, tool calls, and platform API calls run inside
// activities, which are not constrained by determinism.
//
// # OpenTelemetry Integration
//
// The engine installs OTEL interceptors on the Temporal client and workers by
// default, propagating trace context through workflow and activity
// boundaries. Set Instrumentation.DisableTracing/DisableMetrics to opt out.
package temporal
