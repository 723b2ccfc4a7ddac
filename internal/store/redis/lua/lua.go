// Package lua holds the Redis scripts that make record writes atomic.
package lua

import _ "embed"

// Upsert writes a record unless the stored one is terminal. Returns 1 on write, 0 on conflict.
//
//go:embed upsert.lua
var Upsert string

// CompareAndSwap replaces a record if its status and envelope id match.
// Returns 1 on swap, 0 otherwise.
//
//go:embed cas.lua
var CompareAndSwap string
