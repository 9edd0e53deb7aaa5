package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderPaid       OrderStatus = "PAID"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderReturned   OrderStatus = "RETURNED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

// Address is the structured shipping address, stored as a JSON column.
type Address struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("address: unsupported scan type %T", src)
	}
}

// Order amounts are integer currency units. Discount is the legacy order-level
// discount; the admin paths keep it at 0 and carry discounts on line items.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string      `bun:"id,pk" json:"id"`
	UserID          string      `bun:"user_id,notnull" json:"user_id"`
	ShippingFee     int64       `bun:"shipping_fee,notnull" json:"shipping_fee"`
	Subtotal        int64       `bun:"subtotal,notnull" json:"subtotal"`
	Discount        int64       `bun:"discount,notnull" json:"discount"`
	Total           int64       `bun:"total,notnull" json:"total"`
	Status          OrderStatus `bun:"status,notnull" json:"status"`
	ShippingAddress Address     `bun:"shipping_address,type:jsonb" json:"shipping_address"`

	RequestAt   *time.Time `bun:"request_at" json:"request_at"`
	ApprovedAt  *time.Time `bun:"approved_at" json:"approved_at"`
	PaidAt      *time.Time `bun:"paid_at" json:"paid_at"`
	ShippedAt   *time.Time `bun:"shipped_at" json:"shipped_at"`
	DeliveredAt *time.Time `bun:"delivered_at" json:"delivered_at"`
	CancelledAt *time.Time `bun:"cancelled_at" json:"cancelled_at"`
	ReturnedAt  *time.Time `bun:"returned_at" json:"returned_at"`
	RefundedAt  *time.Time `bun:"refunded_at" json:"refunded_at"`

	Version   int64     `bun:"version,notnull" json:"version"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`

	Items []OrderLineItem `bun:"-" json:"items,omitempty"`
}

func (o *Order) timestampFields() map[string]**time.Time {
	return map[string]**time.Time{
		"request_at":   &o.RequestAt,
		"approved_at":  &o.ApprovedAt,
		"paid_at":      &o.PaidAt,
		"shipped_at":   &o.ShippedAt,
		"delivered_at": &o.DeliveredAt,
		"cancelled_at": &o.CancelledAt,
		"returned_at":  &o.ReturnedAt,
		"refunded_at":  &o.RefundedAt,
	}
}

// Timestamps returns the status timestamps keyed by column.
func (o *Order) Timestamps() map[string]*time.Time {
	out := make(map[string]*time.Time, 8)
	for col, field := range o.timestampFields() {
		out[col] = *field
	}
	return out
}

// ApplyTimestamps writes patch values into the matching fields and reports the
// columns that were touched.
func (o *Order) ApplyTimestamps(patch map[string]*time.Time) []string {
	return applyPatch(o.timestampFields(), patch)
}

type OrderLineItem struct {
	bun.BaseModel `bun:"table:order_line_items"`

	ID          string    `bun:"id,pk" json:"id"`
	OrderID     string    `bun:"order_id,notnull" json:"order_id"`
	ProductID   string    `bun:"product_id,notnull" json:"product_id"`
	ProductName string    `bun:"product_name" json:"product_name"`
	Quantity    int64     `bun:"quantity,notnull" json:"quantity"`
	Price       int64     `bun:"price,notnull" json:"price"`
	Discount    int64     `bun:"discount,notnull" json:"discount"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// LineTotal is price × quantity before discount.
func (i OrderLineItem) LineTotal() int64 {
	return i.Price * i.Quantity
}

// CheckoutItem is one product line of a checkout request.
type CheckoutItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type CheckoutRequest struct {
	ShippingFee     int64          `json:"shipping_fee"`
	ShippingAddress Address        `json:"shipping_address"`
	Items           []CheckoutItem `json:"items"`
}

func applyPatch(fields map[string]**time.Time, patch map[string]*time.Time) []string {
	var touched []string
	for col, value := range patch {
		field, ok := fields[col]
		if !ok {
			continue
		}
		if value != nil {
			t := *value
			*field = &t
		} else {
			*field = nil
		}
		touched = append(touched, col)
	}
	return touched
}
