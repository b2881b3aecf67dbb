// Package fetch drives enrichment runs over the pending part numbers of a BOM.
//
// An Orchestrator takes a snapshot of the distinct pending part numbers, marks
// their rows loading and looks them up one after another through the shared
// part client. Each result or failure is fanned out to every row with that part
// number as soon as it arrives, so a run that is interrupted keeps everything it
// already fetched.
//
// Cancellation is cooperative. Stop (or cancelling the run's context) is
// observed between lookups; a lookup that has already started is allowed to
// finish and its result is applied. Part numbers not yet reached go back to
// pending. Lookup failures never abort a run: they become row errors that
// RetryErrors can turn back into pending rows for the next run.
//
// Example:
//
//	orch, err := fetch.New(fetch.Config{
//		Rows:    rowStore,
//		Fetcher: partClient,
//		Queue:   limiter,
//		Logger:  logger,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	summary, err := orch.Run(ctx)
package fetch
