// Package state provides node state services and durable snapshot stores.
//
// A service is attached to node constructors through registry.Dependencies
// and becomes the single source of truth for every node that keeps state.
// MemService keeps the state in memory for the life of the process. Service
// keeps a working set in memory and moves it to and from a Store as a
// snapshot keyed by a caller-chosen name.
package state
