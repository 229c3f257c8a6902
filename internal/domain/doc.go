// Package domain defines the core domain types and interfaces.
//
// Files are concept-oriented (tally.go, snapshot.go, prediction.go, queue.go)
// and hold shared types, sentinel errors and the storage and queue contracts.
// Apart from small accessors there is no implementation code here.
package domain
