package matching

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/model"
	"github.com/lanternex/matchingengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(st))
	return st
}

func seedUser(t *testing.T, st *store.Store, username string) model.User {
	t.Helper()
	u := model.User{Username: username, PasswordHash: "x"}
	require.NoError(t, st.CreateUser(&u))
	return u
}

// Scenario 5: an IOC ask with no opposing bids is fully cancelled and the
// seller's shares are refunded.
func TestCommit_IOCCancelledSellRefund(t *testing.T) {
	st := newTestStore(t)
	seller := seedUser(t, st, "seller")

	require.NoError(t, st.CreateCompany(&model.Company{
		Symbol: "X", Name: "X", InitialValue: decimal.NewFromInt(1), InitialSize: 100,
		FounderID: &seller.UserID, MarketPrice: decimal.NewFromInt(1),
	}))
	require.NoError(t, st.CreditAsset(seller.UserID, "X", decimal.NewFromInt(100)))
	// Debit as though already reserved for the ask, mirroring order submission.
	require.NoError(t, st.CreditAsset(seller.UserID, "X", decimal.NewFromInt(-100)))

	price := decimal.NewFromInt(10)
	ask := model.Order{
		SecuritySymbol: "X", Side: model.SideAsk, Size: 100, Price: &price,
		ImmediateOrCancel: true, OwnerID: &seller.UserID, Active: true,
	}

	err := st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		candidates, err := tx.RestingOrders(ask)
		require.NoError(t, err)
		require.Empty(t, candidates)

		mr := RunMatchCycle(ask, candidates)
		return Commit(tx, mr, CommitOptions{})
	})
	require.NoError(t, err)

	var asset model.Asset
	require.NoError(t, st.DB().Where("owner_id = ? AND asset_symbol = ?", seller.UserID, "X").First(&asset).Error)
	require.True(t, asset.AssetAmount.Equal(decimal.NewFromInt(100)))

	n, err := st.CountEngineLogs(model.HeartbeatFinished)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// A market order that finds no candidate must not rest with a nil price: a
// later, opposing market order would otherwise select it as a candidate and
// panic dereferencing its nil Price in ProposeTrade.
func TestCommit_FirstMarketOrderNeverRestsForSecondOpposingMarketOrder(t *testing.T) {
	st := newTestStore(t)
	buyer := seedUser(t, st, "buyer")
	seller := seedUser(t, st, "seller")

	require.NoError(t, st.CreateCompany(&model.Company{
		Symbol: "X", Name: "X", InitialValue: decimal.NewFromInt(1), InitialSize: 100,
		FounderID: &seller.UserID, MarketPrice: decimal.NewFromInt(1),
	}))
	require.NoError(t, st.CreditAsset(buyer.UserID, model.CashSymbol, decimal.NewFromInt(10000)))
	require.NoError(t, st.CreditAsset(seller.UserID, "X", decimal.NewFromInt(50)))

	bid := model.Order{SecuritySymbol: "X", Side: model.SideBid, Size: 50, Price: nil, OwnerID: &buyer.UserID, Active: true}
	err := st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		candidates, err := tx.RestingOrders(bid)
		require.NoError(t, err)
		require.Empty(t, candidates)

		mr := RunMatchCycle(bid, candidates)
		return Commit(tx, mr, CommitOptions{})
	})
	require.NoError(t, err)

	ask := model.Order{SecuritySymbol: "X", Side: model.SideAsk, Size: 50, Price: nil, OwnerID: &seller.UserID, Active: true}
	err = st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		candidates, err := tx.RestingOrders(ask)
		require.NoError(t, err)
		require.Empty(t, candidates, "cancelled market bid must not resurface as a resting candidate")

		mr := RunMatchCycle(ask, candidates)
		return Commit(tx, mr, CommitOptions{})
	})
	require.NoError(t, err)
}

// Simple cross end to end through the committer: asset settlement on both
// sides matches the transaction's size/price.
func TestCommit_SimpleCrossSettlesAssets(t *testing.T) {
	st := newTestStore(t)
	seller := seedUser(t, st, "seller")
	buyer := seedUser(t, st, "buyer")

	require.NoError(t, st.CreateCompany(&model.Company{
		Symbol: "X", Name: "X", InitialValue: decimal.NewFromInt(1), InitialSize: 100,
		FounderID: &seller.UserID, MarketPrice: decimal.NewFromInt(1),
	}))
	require.NoError(t, st.CreditAsset(buyer.UserID, model.CashSymbol, decimal.NewFromInt(10000)))

	askPrice := decimal.NewFromInt(10)
	var askOrder model.Order
	err := st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		askOrder = model.Order{
			SecuritySymbol: "X", Side: model.SideAsk, Size: 50, Price: &askPrice,
			OwnerID: &seller.UserID, Active: true,
		}
		return tx.InsertOrder(&askOrder)
	})
	require.NoError(t, err)

	bidPrice := decimal.NewFromInt(12)
	bid := model.Order{
		SecuritySymbol: "X", Side: model.SideBid, Size: 50, Price: &bidPrice,
		OwnerID: &buyer.UserID, Active: true,
	}

	err = st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		candidates, err := tx.RestingOrders(bid)
		require.NoError(t, err)
		require.Len(t, candidates, 1)

		mr := RunMatchCycle(bid, candidates)
		return Commit(tx, mr, CommitOptions{})
	})
	require.NoError(t, err)

	var sellerCash, buyerShares, buyerCash model.Asset
	require.NoError(t, st.DB().Where("owner_id = ? AND asset_symbol = ?", seller.UserID, model.CashSymbol).First(&sellerCash).Error)
	require.NoError(t, st.DB().Where("owner_id = ? AND asset_symbol = ?", buyer.UserID, "X").First(&buyerShares).Error)
	require.NoError(t, st.DB().Where("owner_id = ? AND asset_symbol = ?", buyer.UserID, model.CashSymbol).First(&buyerCash).Error)

	require.True(t, sellerCash.AssetAmount.Equal(decimal.NewFromInt(500)))
	require.True(t, buyerShares.AssetAmount.Equal(decimal.NewFromInt(50)))
	require.True(t, buyerCash.AssetAmount.Equal(decimal.NewFromInt(10000 - 500)))
}
