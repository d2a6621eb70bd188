package matching

import (
	"time"

	"github.com/lanternex/matchingengine/internal/model"
)

// RunMatchCycle walks candidates in the order given (price-time priority is
// the selector's job, not this function's) and proposes a trade against each
// until incoming is exhausted or no more candidates accept it. It is pure:
// candidates must already have been selected under the same transaction the
// caller will use to commit the result, and no field of candidates or
// incoming is mutated in the store by this function.
func RunMatchCycle(incoming model.Order, candidates []model.Order) *MatchResult {
	mr := &MatchResult{}

	incoming.RemainingSize = incoming.Size

	// A market order (nil price) may never rest: there is no price left to
	// offer a future arrival, so whatever doesn't fill immediately must be
	// cancelled rather than persisted as an active, priceless order.
	if incoming.Price == nil {
		incoming.ImmediateOrCancel = true
	}

	for i := range candidates {
		if incoming.RemainingSize <= 0 {
			break
		}
		candidate := candidates[i]
		candidate.RemainingSize = candidate.Size

		txn := ProposeTrade(incoming, candidate)
		if txn == nil {
			continue
		}

		incoming.RemainingSize -= txn.Size
		candidate.RemainingSize -= txn.Size

		mr.Transactions = append(mr.Transactions, *txn)
		mr.Deactivated = append(mr.Deactivated, candidate.OrderID)

		if candidate.RemainingSize > 0 {
			sub := candidate.Suborder()
			sub.Active = true
			mr.Reactivated = &sub
		}
	}

	mr.Incoming = incoming

	switch {
	case incoming.RemainingSize == incoming.Size:
		// Untouched: no candidate traded against it at all. IncomingRemain
		// points at the same struct as Incoming (not a copy) so later
		// mutations (AON/IOC below) land on the one row the committer will
		// actually persist.
		mr.Incoming.Active = true
		mr.IncomingRemain = &mr.Incoming
		mr.IncomingRemainIsIncoming = true
	case incoming.RemainingSize > 0:
		sub := incoming.Suborder()
		sub.Active = true
		mr.IncomingRemain = &sub
	default:
		mr.IncomingRemain = nil
	}

	// AON policy on the incoming side: if the incoming order is all-or-none
	// and was not filled in its entirety, discard every effect from this
	// cycle and leave it resting untouched.
	if incoming.AllOrNone && incoming.RemainingSize > 0 {
		mr.Incoming = incoming
		mr.Incoming.Active = true
		mr.IncomingRemain = &mr.Incoming
		mr.IncomingRemainIsIncoming = true
		mr.Transactions = nil
		mr.Deactivated = nil
		mr.Reactivated = nil
		// Fill-or-kill: an AON order that is also IOC (always true for a
		// market order, per the nil-price rule above) must be cancelled
		// outright here rather than left resting.
		if incoming.ImmediateOrCancel {
			now := time.Now().UTC()
			mr.IncomingRemain.CancelledDttm = &now
			mr.IncomingRemain.Active = false
		}
		return mr
	}

	// IOC policy on the incoming side: cancel whatever quantity remains
	// un-traded, rather than resting it.
	if incoming.ImmediateOrCancel && mr.IncomingRemain != nil {
		now := time.Now().UTC()
		mr.IncomingRemain.CancelledDttm = &now
		mr.IncomingRemain.Active = false
	}

	return mr
}
