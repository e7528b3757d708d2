// Package targets owns the built-in worker implementations.
//
// Ownership boundary:
// - constructor registration by implementation name
// - codec descriptors the implementations add to the shared registry
//
// Each subpackage exposes one implementation whose exported methods form its
// operation table.
package targets
