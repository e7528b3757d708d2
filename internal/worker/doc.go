// Package worker owns the worker-side session of the out-of-process
// execution protocol.
//
// Ownership boundary:
// - session bootstrap (construct implementation, build operation table)
// - request dispatch and outcome classification
// - termination signal and correlation slot
//
// Lifecycle order:
// - construct -> install codecs -> register handler -> connect -> wait
//
// - a failed construct poisons the session; it still connects so every
// request can be answered InfrastructureFailed.
//
// Every request yields exactly one Response. Completed carries the result,
// Failed means the operation body reported an error and the worker stays
// usable, InfrastructureFailed means the worker itself is suspect.
//
// The transport, codec registry and instantiation service are collaborators
// behind interfaces; internal/protocol/session provides the stdio transport.
package worker
