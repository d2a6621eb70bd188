// Package matching implements the matching core: the trade proposer, the
// match cycle, and the committer. Candidate selection lives in the store
// package (Tx.RestingOrders). The match cycle itself performs no I/O; only
// the committer talks to the store.
package matching

import "github.com/lanternex/matchingengine/internal/model"

// MatchResult is the in-memory summary of one match cycle.
type MatchResult struct {
	// Incoming is the incoming order with its Active mutation pending.
	Incoming model.Order
	// IncomingRemain is either Incoming itself (not traded / AON-rejected),
	// a newly created sub-order (partial fill), or nil (fully filled).
	IncomingRemain *model.Order
	// IncomingRemainIsIncoming is true when IncomingRemain represents the
	// same logical row as Incoming (untouched or AON-rejected), so the
	// committer must not insert it as a second, distinct order.
	IncomingRemainIsIncoming bool
	// Deactivated holds order_ids of resting orders to flip to active=false.
	Deactivated []int64
	// Reactivated is at most one new sub-order for a partially-filled
	// resting candidate: FIFO iteration means at most the last matched
	// candidate can be partially filled.
	Reactivated *model.Order
	// Transactions is the ordered list of trades produced this cycle.
	Transactions []model.Transaction
}
