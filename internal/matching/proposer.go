package matching

import "github.com/lanternex/matchingengine/internal/model"

// ProposeTrade decides whether incoming and candidate can trade and, if so,
// returns the Transaction they'd produce. It never mutates incoming or
// candidate; the caller is responsible for debiting RemainingSize once a
// Transaction is accepted.
func ProposeTrade(incoming, candidate model.Order) *model.Transaction {
	if incoming.RemainingSize <= 0 || candidate.RemainingSize <= 0 {
		return nil
	}

	ask, bid := incoming, candidate
	if incoming.Side != model.SideAsk {
		ask, bid = candidate, incoming
	}

	tradeSize := ask.RemainingSize
	if bid.RemainingSize < tradeSize {
		tradeSize = bid.RemainingSize
	}

	// AON is only respected on the resting (candidate) side here; the
	// incoming side's AON policy is enforced after the full loop, since it
	// depends on the aggregate outcome of every candidate.
	if candidate.AllOrNone && tradeSize < candidate.RemainingSize {
		return nil
	}

	return &model.Transaction{
		SecuritySymbol:   ask.SecuritySymbol,
		Size:             tradeSize,
		Price:            *candidate.Price,
		AskID:            ask.OrderID,
		BidID:            bid.OrderID,
		AggressorOrderID: incoming.OrderID,
		RestingOrderID:   candidate.OrderID,
	}
}
