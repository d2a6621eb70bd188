// Package codec implements the Order wire format: a self-describing
// key-value encoding where nullable fields round-trip as explicit nulls and
// unknown fields are rejected on decode.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanternex/matchingengine/internal/model"
)

// wireOrder is the on-wire shape of an Order. Every field is
// a pointer or has an explicit "omitempty"-free tag so that marshalling
// never silently drops a null: a nil Price/ParentOrderID/CancelledDttm
// serializes as JSON null, not as an absent key.
type wireOrder struct {
	OrderID           *int64     `json:"order_id"`
	SecuritySymbol    string     `json:"security_symbol"`
	Side              string     `json:"side"`
	Size              int64      `json:"size"`
	Price             *string    `json:"price"`
	AllOrNone         bool       `json:"all_or_none"`
	ImmediateOrCancel bool       `json:"immediate_or_cancel"`
	Active            bool       `json:"active"`
	ParentOrderID     *int64     `json:"parent_order_id"`
	OwnerID           *int64     `json:"owner_id"`
	CancelledDttm     *string    `json:"cancelled_dttm"`
	CreateDttm        *string    `json:"create_dttm"`
}

const dttmLayout = time.RFC3339Nano

// Encode serialises an Order to a self-describing byte payload for the
// queue. Nullable fields are encoded as explicit JSON nulls; datetimes are
// ISO-8601 UTC.
func Encode(o model.Order) ([]byte, error) {
	w := wireOrder{
		SecuritySymbol:    o.SecuritySymbol,
		Side:              string(o.Side),
		Size:              o.Size,
		AllOrNone:         o.AllOrNone,
		ImmediateOrCancel: o.ImmediateOrCancel,
		Active:            o.Active,
		OwnerID:           o.OwnerID,
		ParentOrderID:     o.ParentOrderID,
	}
	if o.OrderID != 0 {
		id := o.OrderID
		w.OrderID = &id
	}
	if o.Price != nil {
		s := o.Price.String()
		w.Price = &s
	}
	if o.CancelledDttm != nil {
		s := o.CancelledDttm.UTC().Format(dttmLayout)
		w.CancelledDttm = &s
	}
	if !o.CreateDttm.IsZero() {
		s := o.CreateDttm.UTC().Format(dttmLayout)
		w.CreateDttm = &s
	}

	return json.Marshal(w)
}

// Decode parses a byte payload back into an Order, rejecting
// unknown fields so a payload from a newer, incompatible wire format fails
// loudly instead of silently dropping data.
func Decode(payload []byte) (model.Order, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var w wireOrder
	if err := dec.Decode(&w); err != nil {
		return model.Order{}, fmt.Errorf("codec: decode order: %w", err)
	}

	side := model.Side(w.Side)
	if side != model.SideAsk && side != model.SideBid {
		return model.Order{}, fmt.Errorf("codec: invalid side %q", w.Side)
	}

	o := model.Order{
		SecuritySymbol:    w.SecuritySymbol,
		Side:              side,
		Size:              w.Size,
		AllOrNone:         w.AllOrNone,
		ImmediateOrCancel: w.ImmediateOrCancel,
		Active:            w.Active,
		OwnerID:           w.OwnerID,
		ParentOrderID:     w.ParentOrderID,
	}
	if w.OrderID != nil {
		o.OrderID = *w.OrderID
	}
	if w.Price != nil {
		p, err := decimal.NewFromString(*w.Price)
		if err != nil {
			return model.Order{}, fmt.Errorf("codec: invalid price %q: %w", *w.Price, err)
		}
		o.Price = &p
	}
	if w.CancelledDttm != nil {
		t, err := time.Parse(dttmLayout, *w.CancelledDttm)
		if err != nil {
			return model.Order{}, fmt.Errorf("codec: invalid cancelled_dttm %q: %w", *w.CancelledDttm, err)
		}
		o.CancelledDttm = &t
	}
	if w.CreateDttm != nil {
		t, err := time.Parse(dttmLayout, *w.CreateDttm)
		if err != nil {
			return model.Order{}, fmt.Errorf("codec: invalid create_dttm %q: %w", *w.CreateDttm, err)
		}
		o.CreateDttm = t
	}

	return o, nil
}

