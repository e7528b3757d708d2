// Package codec owns argument and result value encoding.
//
// Ownership boundary:
// - type descriptor <-> Go type registry
// - CBOR value encode/decode
//
// Descriptors are the names that travel on the wire next to every argument
// and result. Both ends of a session must register the same descriptors; a
// descriptor one side cannot resolve is a linkage problem, not a value problem.
package codec
