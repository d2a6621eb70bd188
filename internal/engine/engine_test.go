package engine

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

func TestProcessOrder_DryRunSkipsCommit(t *testing.T) {
	st := newTestStore(t)
	eng := New(st, Config{DryRun: true, MaxRetries: 2}, zap.NewNop())

	owner := int64(1)
	order := model.Order{SecuritySymbol: "X", Side: model.SideBid, Size: 10, Price: nil, OwnerID: &owner}

	err := eng.ProcessOrder(context.Background(), order)
	require.NoError(t, err)

	n, err := st.CountEngineLogs(model.HeartbeatFinished)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestProcessOrder_CommitsAndLogsHeartbeat(t *testing.T) {
	st := newTestStore(t)
	eng := New(st, Config{MaxRetries: 2}, zap.NewNop())

	seller := int64(1)
	require.NoError(t, st.CreateUser(&model.User{UserID: seller, Username: "seller", PasswordHash: "x"}))

	price := decimal.NewFromInt(10)
	err := st.WithinTransaction(context.Background(), func(tx *store.Tx) error {
		return tx.InsertOrder(&model.Order{
			SecuritySymbol: "X", Side: model.SideAsk, Size: 10, Price: &price,
			OwnerID: &seller, Active: true,
		})
	})
	require.NoError(t, err)

	buyer := int64(2)
	require.NoError(t, st.CreateUser(&model.User{UserID: buyer, Username: "buyer", PasswordHash: "x"}))
	require.NoError(t, st.CreditAsset(buyer, model.CashSymbol, decimal.NewFromInt(1000)))

	bidPrice := decimal.NewFromInt(10)
	bid := model.Order{SecuritySymbol: "X", Side: model.SideBid, Size: 10, Price: &bidPrice, OwnerID: &buyer, Active: true}

	err = eng.ProcessOrder(context.Background(), bid)
	require.NoError(t, err)

	n, err := st.CountEngineLogs(model.HeartbeatFinished)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
