package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, Migrate(st))
	return st
}

func p(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// RestingOrders must return asks in ascending price, then ascending
// create_dttm, for an incoming bid.
func TestRestingOrders_PriceTimePriorityForBid(t *testing.T) {
	st := newTestStore(t)
	owner := int64(1)
	incomingOwner := int64(2)

	now := time.Now().UTC()
	orders := []model.Order{
		{SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: p("10"), Active: true, OwnerID: &owner, CreateDttm: now},
		{SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: p("10"), Active: true, OwnerID: &owner, CreateDttm: now.Add(time.Second)},
		{SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: p("9"), Active: true, OwnerID: &owner, CreateDttm: now.Add(2 * time.Second)},
	}
	for i := range orders {
		require.NoError(t, st.db.Create(&orders[i]).Error)
	}

	incoming := model.Order{SecuritySymbol: "X", Side: model.SideBid, Price: p("11"), OwnerID: &incomingOwner}

	err := st.WithinTransaction(context.Background(), func(tx *Tx) error {
		candidates, err := tx.RestingOrders(incoming)
		require.NoError(t, err)
		require.Len(t, candidates, 3)
		// Cheapest price first...
		require.True(t, candidates[0].Price.Equal(decimal.RequireFromString("9")))
		// ...then ascending create_dttm among the tied-price pair.
		require.True(t, candidates[1].Price.Equal(decimal.RequireFromString("10")))
		require.True(t, candidates[2].Price.Equal(decimal.RequireFromString("10")))
		// The tied pair was inserted with explicit create_dttm values one
		// second apart; the older one must come first.
		require.False(t, candidates[1].CreateDttm.After(candidates[2].CreateDttm))
		return nil
	})
	require.NoError(t, err)
}

// Same-owner resting orders are never candidates, preventing self-trades.
func TestRestingOrders_ExcludesSameOwner(t *testing.T) {
	st := newTestStore(t)
	owner := int64(1)

	ask := model.Order{SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: p("10"), Active: true, OwnerID: &owner}
	require.NoError(t, st.db.Create(&ask).Error)

	incoming := model.Order{SecuritySymbol: "X", Side: model.SideBid, Price: p("10"), OwnerID: &owner}

	err := st.WithinTransaction(context.Background(), func(tx *Tx) error {
		candidates, err := tx.RestingOrders(incoming)
		require.NoError(t, err)
		require.Empty(t, candidates)
		return nil
	})
	require.NoError(t, err)
}

func TestAdjustAsset_CreatesThenAccumulates(t *testing.T) {
	st := newTestStore(t)
	err := st.CreditAsset(1, model.CashSymbol, decimal.NewFromInt(100))
	require.NoError(t, err)
	err = st.CreditAsset(1, model.CashSymbol, decimal.NewFromInt(-40))
	require.NoError(t, err)

	var asset model.Asset
	require.NoError(t, st.db.Where("owner_id = ? AND asset_symbol = ?", 1, model.CashSymbol).First(&asset).Error)
	require.True(t, asset.AssetAmount.Equal(decimal.NewFromInt(60)))
}
