package matching

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/lanternex/matchingengine/internal/errs"
	"github.com/lanternex/matchingengine/internal/model"
	"github.com/lanternex/matchingengine/internal/store"
)

func decimalOf(size int64) decimal.Decimal { return decimal.NewFromInt(size) }

// CommitOptions controls settlement behaviour for a single Commit call.
// SkipAssetSettlement mirrors chives' ignore_user_logic: orders/transactions
// still persist, but asset balances and Company.MarketPrice are left
// untouched.
type CommitOptions struct {
	SkipAssetSettlement bool
}

// Commit applies a MatchResult to the store in one transaction. tx must be
// the same transaction the candidates in this result were selected under.
// Any returned error must roll back the caller's transaction; whether the
// caller retries is decided by the error's errs code (store contention is
// retryable, referential failures and invariant violations are not).
// Commit itself does not retry.
func Commit(tx *store.Tx, mr *MatchResult, opts CommitOptions) error {
	if err := validateResult(mr); err != nil {
		return errs.Wrap(err, errs.CodeInvariantViolation, "match result failed validation")
	}

	// Step 1: upsert the incoming order (its Active flag in particular).
	if mr.Incoming.OrderID == 0 {
		if err := tx.InsertOrder(&mr.Incoming); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "insert incoming order")
		}
	} else if err := tx.SaveOrder(&mr.Incoming); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "save incoming order")
	}

	// Step 2: if incoming_remain is a distinct new row, insert it.
	if mr.IncomingRemainIsIncoming && mr.IncomingRemain != nil {
		// Same logical row as Incoming: sync the assigned OrderID rather
		// than inserting a second row for it.
		mr.IncomingRemain.OrderID = mr.Incoming.OrderID
	} else if mr.IncomingRemain != nil {
		// IncomingRemain.ParentOrderID was captured before Incoming had a
		// store-assigned OrderID (Suborder() runs inside the pure match
		// cycle); backfill it now that Step 1 has inserted the parent.
		parentID := mr.Incoming.OrderID
		mr.IncomingRemain.ParentOrderID = &parentID
		if err := tx.InsertOrder(mr.IncomingRemain); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "insert incoming remainder sub-order")
		}
	}

	// Step 3: deactivate matched resting orders.
	for _, id := range mr.Deactivated {
		if err := tx.DeactivateOrder(id); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "deactivate resting order")
		}
	}

	// Step 4: insert the residual sub-order of a partially-filled candidate.
	if mr.Reactivated != nil {
		if err := tx.InsertOrder(mr.Reactivated); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "insert reactivated sub-order")
		}
	}

	// Step 5: insert transactions and settle assets/market price.
	for i := range mr.Transactions {
		t := &mr.Transactions[i]
		// The trade was proposed before Incoming had a store-assigned
		// OrderID; point its incoming side at the row Step 1 wrote.
		t.AggressorOrderID = mr.Incoming.OrderID
		if mr.Incoming.Side == model.SideAsk {
			t.AskID = mr.Incoming.OrderID
		} else {
			t.BidID = mr.Incoming.OrderID
		}
		if err := tx.InsertTransaction(t); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "insert transaction")
		}

		if opts.SkipAssetSettlement {
			continue
		}
		if err := settle(tx, t); err != nil {
			return err
		}
	}

	// Step 6: refund a cancelled sell remainder (IOC on an ask).
	if mr.IncomingRemain != nil && mr.IncomingRemain.Side == model.SideAsk &&
		mr.IncomingRemain.CancelledDttm != nil && !opts.SkipAssetSettlement {
		if mr.IncomingRemain.OwnerID == nil {
			return errs.New(errs.CodeReferentialFailure, "cancelled ask sub-order has no owner to refund")
		}
		if err := tx.AdjustAsset(*mr.IncomingRemain.OwnerID, mr.IncomingRemain.SecuritySymbol, decimalOf(mr.IncomingRemain.Size)); err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "refund cancelled ask remainder")
		}
	}

	// Step 7: append the heartbeat log row the benchmark harness polls for.
	hostname, _ := os.Hostname()
	logEntry := model.EngineLog{
		Hostname: hostname,
		Pid:      os.Getpid(),
		LogMsg:   model.HeartbeatFinished,
		ExtRef:   "order",
		ExtRefID: &mr.Incoming.OrderID,
	}
	if err := tx.AppendLog(logEntry); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "append heartbeat log")
	}

	return nil
}

// settle credits the seller's cash, credits the buyer's asset, debits the
// buyer's cash, and updates the company's market price. The resting order's
// limit price always wins, and the seller's shares were already debited at
// order submission, so only cash moves for the seller.
func settle(tx *store.Tx, t *model.Transaction) error {
	ask, err := tx.GetOrder(t.AskID)
	if err != nil {
		return errs.Wrap(err, errs.CodeReferentialFailure, "load ask order")
	}
	bid, err := tx.GetOrder(t.BidID)
	if err != nil {
		return errs.Wrap(err, errs.CodeReferentialFailure, "load bid order")
	}
	if ask.OwnerID == nil || bid.OwnerID == nil {
		return errs.New(errs.CodeReferentialFailure, "ask or bid order has no owner")
	}

	cashVolume := t.Price.Mul(decimalOf(t.Size))

	if _, err := tx.GetUser(*ask.OwnerID); err != nil {
		return errs.Wrap(err, errs.CodeReferentialFailure, "load seller")
	}
	if _, err := tx.GetUser(*bid.OwnerID); err != nil {
		return errs.Wrap(err, errs.CodeReferentialFailure, "load buyer")
	}

	if err := tx.AdjustAsset(*ask.OwnerID, model.CashSymbol, cashVolume); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "credit seller cash")
	}
	if err := tx.AdjustAsset(*bid.OwnerID, t.SecuritySymbol, decimalOf(t.Size)); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "credit buyer shares")
	}
	if err := tx.AdjustAsset(*bid.OwnerID, model.CashSymbol, cashVolume.Neg()); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "debit buyer cash")
	}
	if err := tx.UpdateMarketPrice(t.SecuritySymbol, t.Price); err != nil {
		return errs.Wrap(err, errs.CodeStoreContention, "update market price")
	}
	return nil
}

// validateResult checks invariants that a programming error in the match
// cycle could violate; a failure here is a CodeInvariantViolation, not a
// retryable condition.
func validateResult(mr *MatchResult) error {
	for _, t := range mr.Transactions {
		if t.Size <= 0 {
			return fmt.Errorf("non-positive transaction size %d", t.Size)
		}
		if t.AskID == t.BidID {
			return fmt.Errorf("self-trade: ask_id == bid_id == %d", t.AskID)
		}
	}
	return nil
}
