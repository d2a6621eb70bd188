package bench

import (
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

func TestSeed_CreatesFundedBuyerAndSeller(t *testing.T) {
	st := newTestStore(t)

	buyer, seller, company, err := seed(st, "BENCH")
	require.NoError(t, err)
	require.NotZero(t, buyer.UserID)
	require.NotZero(t, seller.UserID)
	require.Equal(t, "BENCH", company.Symbol)

	buyerCash, err := cashBalance(st, buyer.UserID)
	require.NoError(t, err)
	require.True(t, buyerCash.Equal(decimal.NewFromInt(10_000_000)))

	sellerCash, err := cashBalance(st, seller.UserID)
	require.NoError(t, err)
	require.True(t, sellerCash.Equal(decimal.NewFromInt(10_000_000)))
}

func cashBalance(st *store.Store, ownerID int64) (decimal.Decimal, error) {
	var asset model.Asset
	err := st.DB().Where("owner_id = ? AND asset_symbol = ?", ownerID, model.CashSymbol).First(&asset).Error
	return asset.AssetAmount, err
}

func TestVerify_FlagsSizeAndPriceMismatches(t *testing.T) {
	st := newTestStore(t)
	_, _, company, err := seed(st, "BENCH")
	require.NoError(t, err)

	require.NoError(t, st.DB().Create(&model.Transaction{
		SecuritySymbol: company.Symbol,
		Size:           10,
		Price:          decimal.NewFromInt(5),
		AskID:          1,
		BidID:          2,
	}).Error)

	mismatches, transacted, err := verify(st, company.Symbol, []int64{99}, []decimal.Decimal{decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.Equal(t, 1, transacted)
	require.Len(t, mismatches, 2)
}
