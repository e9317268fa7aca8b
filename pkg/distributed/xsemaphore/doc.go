// Package xsemaphore implements the distributed counting semaphore: a
// key-scoped pool of at most `limit` slots, each held under a
// caller-supplied slot identity with its own TTL.
//
// The surface mirrors xdlock's Provider/Handle/Adapter composition:
//
//   - Provider: resolves namespace-prefixed keys, applies defaults, drives
//     the blocking-acquire retry loop, and dispatches lifecycle events.
//   - Handle: one (key, slotID) binding; Release/Refresh are effective only
//     for that slot identity, and re-acquiring with the same slotID is
//     idempotent.
//   - Adapter: the backend contract. MemoryAdapter and RedisAdapter are
//     native atomic realizations; SQLAdapter composes the same algorithm
//     inside one serializable transaction over the semaphore /
//     semaphore_slot tables.
//
// # Limit binding
//
// The first successful acquire on an empty key fixes the limit; later
// acquires that pass a different limit are ignored — the stored limit wins
// until the key empties out, at which point the next acquire may
// re-establish it.
//
// # Aggregate TTL
//
// A key's record lives exactly as long as its longest-lived slot: the
// record-level expiry is the maximum slot expiration, or "never" while any
// live slot is unexpiring. When the last slot is released the whole record
// (slots and stored limit) is reclaimed.
//
// # Redis layout
//
// One sorted set per key (member = slotID, score = expiration in unix
// millis, score 0 = unexpiring) plus a sibling "<key>__limit" string
// holding the bound limit. Every mutation runs as a Lua script that purges
// expired members (ZREMRANGEBYSCORE 1 now — score 0 survives), applies the
// change, and recomputes the key TTL: PERSIST when any score is 0,
// PEXPIREAT max(score) otherwise, DEL of both siblings when empty.
package xsemaphore
