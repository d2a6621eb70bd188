// Package bench implements a correctness-verification harness grounded on
// chives' benchmark.py: seed a buyer, a seller, and a company, submit n
// paired orders, then poll for 2n heartbeat rows and check trade
// correctness.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanternex/matchingengine/internal/model"
	"github.com/lanternex/matchingengine/internal/queue"
	"github.com/lanternex/matchingengine/internal/store"
)

// Config controls one benchmark run.
type Config struct {
	Rounds   int
	Symbol   string
	PollWait time.Duration
	Timeout  time.Duration
}

// DefaultConfig mirrors chives' benchmark.py defaults.
func DefaultConfig() Config {
	return Config{
		Rounds:   1,
		Symbol:   "BENCH",
		PollWait: time.Second,
		Timeout:  time.Minute,
	}
}

// Result reports the outcome of a benchmark run.
type Result struct {
	Rounds      int
	Duration    time.Duration
	Mismatches  []string
	Transacted  int
	HeartbeatsSeen int
}

// Run seeds a buyer/seller/company, submits cfg.Rounds paired ask/bid orders
// through the queue, and polls the store for 2*cfg.Rounds "Heartbeat
// finished" EngineLog rows before checking each transaction's size and
// price against what was submitted.
func Run(ctx context.Context, st *store.Store, consumer *queue.Consumer, cfg Config) (*Result, error) {
	buyer, seller, company, err := seed(st, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("bench: seed: %w", err)
	}

	sizes := make([]int64, cfg.Rounds)
	prices := make([]decimal.Decimal, cfg.Rounds)
	for i := 0; i < cfg.Rounds; i++ {
		sizes[i] = int64(1 + rand.Intn(100))
		prices[i] = decimal.NewFromFloat(10 + rand.Float64()*90).Round(2)
	}

	start := time.Now()

	for i := 0; i < cfg.Rounds; i++ {
		if err := creditShares(st, seller.UserID, cfg.Symbol, sizes[i]); err != nil {
			return nil, fmt.Errorf("bench: credit seller shares round %d: %w", i, err)
		}

		price := prices[i]
		ask := model.Order{
			SecuritySymbol: cfg.Symbol,
			Side:           model.SideAsk,
			Size:           sizes[i],
			Price:          &price,
			OwnerID:        &seller.UserID,
			Active:         true,
		}
		bid := model.Order{
			SecuritySymbol: cfg.Symbol,
			Side:           model.SideBid,
			Size:           sizes[i],
			Price:          nil,
			OwnerID:        &buyer.UserID,
			Active:         true,
		}

		if err := consumer.Publish(ask); err != nil {
			return nil, fmt.Errorf("bench: publish ask round %d: %w", i, err)
		}
		if err := consumer.Publish(bid); err != nil {
			return nil, fmt.Errorf("bench: publish bid round %d: %w", i, err)
		}
	}

	wantHeartbeats := 2 * cfg.Rounds
	deadline := time.Now().Add(cfg.Timeout)
	var seen int
	for {
		n, err := countHeartbeats(st, company.Symbol)
		if err != nil {
			return nil, fmt.Errorf("bench: count heartbeats: %w", err)
		}
		seen = n
		if seen >= wantHeartbeats {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("bench: timed out waiting for %d heartbeats, saw %d", wantHeartbeats, seen)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.PollWait):
		}
	}

	duration := time.Since(start)

	mismatches, transacted, err := verify(st, cfg.Symbol, sizes, prices)
	if err != nil {
		return nil, fmt.Errorf("bench: verify: %w", err)
	}

	return &Result{
		Rounds:         cfg.Rounds,
		Duration:       duration,
		Mismatches:     mismatches,
		Transacted:     transacted,
		HeartbeatsSeen: seen,
	}, nil
}

// seed creates a buyer, a seller, and a company, and gives both accounts
// _CASH to trade with, grounded on chives' benchmark.py add_user/add_company.
func seed(st *store.Store, symbol string) (buyer, seller model.User, company model.Company, err error) {
	buyer = model.User{Username: fmt.Sprintf("bench-buyer-%d", rand.Int()), PasswordHash: "x"}
	if err = st.CreateUser(&buyer); err != nil {
		return
	}
	seller = model.User{Username: fmt.Sprintf("bench-seller-%d", rand.Int()), PasswordHash: "x"}
	if err = st.CreateUser(&seller); err != nil {
		return
	}

	company = model.Company{
		Symbol:       symbol,
		Name:         symbol,
		InitialValue: decimal.NewFromInt(10000),
		InitialSize:  10000,
		FounderID:    &seller.UserID,
		MarketPrice:  decimal.NewFromInt(1),
	}
	if err = st.CreateCompany(&company); err != nil {
		return
	}

	cash := decimal.NewFromInt(10_000_000)
	if err = st.CreditAsset(buyer.UserID, model.CashSymbol, cash); err != nil {
		return
	}
	if err = st.CreditAsset(seller.UserID, model.CashSymbol, cash); err != nil {
		return
	}
	return
}

// creditShares gives the seller inventory to sell before an ask is
// submitted, mirroring chives' benchmark.py injecting shares immediately
// before publishing the ask.
func creditShares(st *store.Store, ownerID int64, symbol string, size int64) error {
	return st.CreditAsset(ownerID, symbol, decimal.NewFromInt(size))
}

func countHeartbeats(st *store.Store, symbol string) (int, error) {
	return st.CountEngineLogs(model.HeartbeatFinished)
}

// verify checks that exactly cfg.Rounds transactions exist for symbol and
// that each one's size and price match what was submitted in the same
// round, grounded on chives' benchmark.py's correctness check loop.
func verify(st *store.Store, symbol string, sizes []int64, prices []decimal.Decimal) ([]string, int, error) {
	txns, err := st.TransactionsForSymbol(symbol)
	if err != nil {
		return nil, 0, err
	}

	var mismatches []string
	if len(txns) != len(sizes) {
		mismatches = append(mismatches, fmt.Sprintf("expected %d transactions for %s, found %d", len(sizes), symbol, len(txns)))
	}
	for i, t := range txns {
		if i >= len(sizes) {
			break
		}
		if t.Size != sizes[i] {
			mismatches = append(mismatches, fmt.Sprintf("round %d: size %d != expected %d", i, t.Size, sizes[i]))
		}
		if !t.Price.Equal(prices[i]) {
			mismatches = append(mismatches, fmt.Sprintf("round %d: price %s != expected %s", i, t.Price, prices[i]))
		}
	}
	return mismatches, len(txns), nil
}
