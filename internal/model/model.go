// Package model defines the relational entities: User, Asset, Company,
// Order, Transaction and EngineLog. These are GORM models; the store
// package (internal/store) is the only place that queries them.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is an order's side: ask (sell) or bid (buy).
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// Opposite returns the other side, used by the candidate selector.
func (s Side) Opposite() Side {
	if s == SideAsk {
		return SideBid
	}
	return SideAsk
}

// CashSymbol is the reserved asset symbol representing a user's cash balance.
const CashSymbol = "_CASH"

// User is opaque to the matching core beyond its identity.
type User struct {
	UserID       int64  `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string `gorm:"column:username;uniqueIndex;size:120;not null"`
	PasswordHash string `gorm:"column:password_hash;size:120;not null"`
}

func (User) TableName() string { return "users" }

// Asset is a (owner, symbol) balance row. Symbol "_CASH" is cash.
type Asset struct {
	OwnerID     int64           `gorm:"column:owner_id;primaryKey"`
	AssetSymbol string          `gorm:"column:asset_symbol;primaryKey;size:10"`
	AssetAmount decimal.Decimal `gorm:"column:asset_amount;type:numeric;not null"`
}

func (Asset) TableName() string { return "assets" }

// Company represents a tradeable security. MarketPrice is mutated by every
// trade that settles against its symbol.
type Company struct {
	Symbol        string    `gorm:"column:symbol;primaryKey;size:10"`
	Name          string    `gorm:"column:name;size:50;not null"`
	InitialValue  decimal.Decimal `gorm:"column:initial_value;type:numeric;not null"`
	InitialSize   int64     `gorm:"column:initial_size;not null"`
	FounderID     *int64    `gorm:"column:founder_id"`
	MarketPrice   decimal.Decimal `gorm:"column:market_price;type:numeric;not null"`
	CreateDttm    time.Time `gorm:"column:create_dttm;autoCreateTime"`
}

func (Company) TableName() string { return "companies" }

// Order is a resting, matched, or cancelled order. Price is nil
// for market orders and for sub-orders spawned from a market order. Orders
// are never deleted: they are mutated in place only by the engine loop to flip
// Active, set CancelledDttm, or via the creation of a linked sub-order.
type Order struct {
	OrderID            int64            `gorm:"column:order_id;primaryKey;autoIncrement"`
	SecuritySymbol     string           `gorm:"column:security_symbol;size:10;not null;index:idx_orders_symbol_side_active"`
	Side               Side             `gorm:"column:side;size:3;not null;index:idx_orders_symbol_side_active"`
	Size               int64            `gorm:"column:size;not null"`
	Price              *decimal.Decimal `gorm:"column:price;type:numeric"`
	AllOrNone          bool             `gorm:"column:all_or_none;not null;default:false"`
	ImmediateOrCancel  bool             `gorm:"column:immediate_or_cancel;not null;default:false"`
	Active             bool             `gorm:"column:active;not null;default:false;index:idx_orders_symbol_side_active"`
	ParentOrderID      *int64           `gorm:"column:parent_order_id;uniqueIndex"`
	OwnerID            *int64           `gorm:"column:owner_id;index"`
	CancelledDttm      *time.Time       `gorm:"column:cancelled_dttm"`
	CreateDttm         time.Time        `gorm:"column:create_dttm;autoCreateTime;index"`

	// RemainingSize is a transient, in-memory-only quantity tracked during a
	// single match cycle. It is never persisted; RunMatchCycle resets it to
	// Size for the incoming order and for each candidate before use.
	RemainingSize int64 `gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// Suborder returns a new Order representing o's un-traded residual: same
// symbol/side/price/flags/owner, RemainingSize as its size, linked back to o
// via ParentOrderID.
func (o Order) Suborder() Order {
	return Order{
		SecuritySymbol:    o.SecuritySymbol,
		Side:              o.Side,
		Size:              o.RemainingSize,
		Price:             o.Price,
		AllOrNone:         o.AllOrNone,
		ImmediateOrCancel: o.ImmediateOrCancel,
		ParentOrderID:     &o.OrderID,
		OwnerID:           o.OwnerID,
		CreateDttm:        time.Now().UTC(),
	}
}

// Transaction is an append-only trade record.
type Transaction struct {
	TransactionID      int64           `gorm:"column:transaction_id;primaryKey;autoIncrement"`
	SecuritySymbol     string          `gorm:"column:security_symbol;size:10;not null"`
	Size               int64           `gorm:"column:size;not null"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric;not null"`
	AskID              int64           `gorm:"column:ask_id;not null;index"`
	BidID              int64           `gorm:"column:bid_id;not null;index"`
	AggressorOrderID   int64           `gorm:"column:aggressor_order_id;not null"`
	RestingOrderID     int64           `gorm:"column:resting_order_id;not null;uniqueIndex"`
	TransactDttm       time.Time       `gorm:"column:transact_dttm;not null;autoCreateTime"`
}

func (Transaction) TableName() string { return "transactions" }

// EngineLog is an append-only activity log; external verifiers (the
// benchmark harness) poll for "Heartbeat finished" rows to detect
// quiescence.
type EngineLog struct {
	LogID    int64     `gorm:"column:log_id;primaryKey;autoIncrement"`
	Hostname string    `gorm:"column:hostname;size:256;not null"`
	Pid      int       `gorm:"column:pid;not null"`
	LogDttm  time.Time `gorm:"column:log_dttm;autoCreateTime;not null"`
	LogMsg   string    `gorm:"column:log_msg;size:1024"`
	ExtRef   string    `gorm:"column:ext_ref;size:32"`
	ExtRefID *int64    `gorm:"column:ext_ref_id"`
}

func (EngineLog) TableName() string { return "me_logs" }

// HeartbeatFinished is the canonical EngineLog message the benchmark harness
// watches for to detect a fully idle engine.
const HeartbeatFinished = "Heartbeat finished"
