package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternex/matchingengine/internal/model"
)

func TestProposeTrade_RestingPriceWins(t *testing.T) {
	ask := model.Order{OrderID: 1, SecuritySymbol: "X", Side: model.SideAsk, Size: 50, Price: price("10"), RemainingSize: 50}
	bid := model.Order{OrderID: 2, SecuritySymbol: "X", Side: model.SideBid, Size: 50, Price: price("12"), RemainingSize: 50}

	txn := ProposeTrade(bid, ask)

	require.NotNil(t, txn)
	assert.True(t, txn.Price.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, int64(50), txn.Size)
	assert.Equal(t, ask.OrderID, txn.AskID)
	assert.Equal(t, bid.OrderID, txn.BidID)
	assert.Equal(t, bid.OrderID, txn.AggressorOrderID)
	assert.Equal(t, ask.OrderID, txn.RestingOrderID)
}

func TestProposeTrade_NoSelfTrade(t *testing.T) {
	owner := int64(1)
	ask := model.Order{OrderID: 1, SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: price("10"), OwnerID: &owner, RemainingSize: 10}
	bid := model.Order{OrderID: 2, SecuritySymbol: "X", Side: model.SideBid, Size: 10, Price: price("10"), OwnerID: &owner, RemainingSize: 10}

	txn := ProposeTrade(bid, ask)
	require.NotNil(t, txn)
	assert.NotEqual(t, txn.AskID, txn.BidID)
	// Self-trade prevention across the same owner happens in candidate
	// selection (store.RestingOrders excludes same-owner rows), not here;
	// ProposeTrade is a pure price/size function over whatever pair it is
	// given.
}

func TestProposeTrade_RestingAONBlocksPartialFill(t *testing.T) {
	ask := model.Order{OrderID: 1, SecuritySymbol: "X", Side: model.SideAsk, Size: 100, Price: price("10"), AllOrNone: true, RemainingSize: 100}
	bid := model.Order{OrderID: 2, SecuritySymbol: "X", Side: model.SideBid, Size: 40, Price: price("10"), RemainingSize: 40}

	txn := ProposeTrade(bid, ask)
	assert.Nil(t, txn)
}

func TestProposeTrade_ZeroRemainingSizeYieldsNoTrade(t *testing.T) {
	ask := model.Order{OrderID: 1, SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: price("10"), RemainingSize: 0}
	bid := model.Order{OrderID: 2, SecuritySymbol: "X", Side: model.SideBid, Size: 10, Price: price("10"), RemainingSize: 10}

	txn := ProposeTrade(bid, ask)
	assert.Nil(t, txn)
}
