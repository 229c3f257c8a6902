// Package app holds the long-running processes of the pipeline.
//
// Collector is the poll loop: catalog, fetch, extract, persist a snapshot and
// enqueue a projection task. Worker consumes those tasks, projects the
// national result and stores a prediction. Both depend on small interfaces
// over domain types, never on concrete adapters.
package app
