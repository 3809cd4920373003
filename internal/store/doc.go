// Package store implements the in-memory key-value engine backing a single
// quillstore node.
//
// # Overview
//
// The store maps opaque string keys to exactly one typed value. A value is a
// closed tagged variant over the shapes the document model needs:
//
//	String  document fields, metadata entries
//	List    ordered document lines
//	Hash    field → value attribute maps
//	Set     membership collections (subscriber rosters, tags)
//
// The active variant determines which commands are legal against a key.
// A command issued against the wrong shape fails with ErrWrongType and
// leaves the stored value untouched; nothing is ever coerced.
//
// # Concurrency
//
// One Store is shared by every connection goroutine on a node. All access
// goes through Store methods, which serialize mutations behind a single
// RWMutex; no command ever observes a partially-applied sibling mutation.
// Raw references to entries never escape the lock.
//
// # Expiration
//
// Keys may carry an expiry deadline. Expiration is lazy: a key past its
// deadline is treated as absent on next access and physically removed at
// that point. No background sweeper is required for correctness.
package store
