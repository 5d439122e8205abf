// Package audithook is a backlog extension that turns lifecycle events into
// structured audit events for an append-only trail.
//
// Every job hook emits an [AuditEvent] through the [Recorder] interface with
// a severity (info for normal operations, warning for retries and
// cancellations, critical for failures) and metadata such as type tag,
// queue key, attempt and elapsed time.
//
// # Writing JSON lines
//
//	f, _ := os.OpenFile("audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
//	eng, _ := engine.Build(d,
//	    engine.WithExtension(audithook.New(audithook.NewJSONRecorder(f))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobFatal,
//	    ),
//	)
package audithook
