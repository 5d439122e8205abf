// Package engine wires all backlog subsystems together and provides
// the primary application-level API for registering and submitting work.
//
// The engine package exists to break a fundamental import cycle: the root
// backlog package defines the configuration and sentinel errors imported
// by job, ledger, worker, etc. and therefore cannot import those packages
// back. Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	d, err := backlog.New(
//	    backlog.WithStore(sqliteStore),
//	    backlog.WithConcurrency(4),
//	    backlog.WithFairness(backlog.FairnessRoundRobin),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithExtension(crashReporter),
//	    engine.WithConstraint("online", online),
//	    engine.WithTypeConfig(queue.TypeConfig{
//	        TypeTag:        "attachment_upload",
//	        MaxConcurrency: 2,
//	    }),
//	    engine.WithEnv(services),
//	)
//
// # Registering Work
//
//	engine.Register(eng, SendMessage)
//
// # Submitting Work
//
//	jobID, err := engine.Enqueue(ctx, eng, SendMessage, msg,
//	    job.WithQueue(conversationID),
//	    job.WithConstraints("online"),
//	    job.WithLifespan(24*time.Hour),
//	)
//
//	// Every record of a stage waits for all of the previous stage.
//	ids, err := eng.StartChain(engine.Step(upload)).
//	    Then(engine.Step(send)).
//	    Enqueue(ctx)
//
// # Options
//
//   - [WithExtension] register a lifecycle extension
//   - [WithMiddleware] add a middleware to the execution chain
//   - [WithBackoff] set the retry backoff strategy
//   - [WithTypeConfig] configure per-type caps and rate limits
//   - [WithConstraint] register a named eligibility predicate
//   - [WithPrometheus] record lifecycle metrics on a Prometheus registerer
//   - [WithTracerProvider] set the OpenTelemetry tracer provider
//   - [WithMeterProvider] set the OpenTelemetry meter provider
package engine
