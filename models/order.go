package models

import (
	"time"

	"gorm.io/datatypes"
)

// Kind identifies an order collection. It doubles as the notification
// channel name for that collection.
type Kind string

const (
	KindDine   Kind = "dine"
	KindOnline Kind = "online"
)

// Valid reports whether k names a known order collection
func (k Kind) Valid() bool {
	return k == KindDine || k == KindOnline
}

// OrderStatus is the fulfilment state of an order: pending, approved, completed
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusApproved  OrderStatus = "approved"
	StatusCompleted OrderStatus = "completed"
)

// PaymentStatus is independent of OrderStatus: pending, paid, failed
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether s is one of the accepted payment states
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// OrderItem is one line of an order. TotalPrice is always Qty * ItemPrice.
type OrderItem struct {
	ItemID     string  `json:"item_id"`
	ItemName   string  `json:"item_name"`
	Qty        int     `json:"qty"`
	ItemPrice  float64 `json:"item_price"`
	TotalPrice float64 `json:"total_price"`
}

// OrderHeader holds the fields shared by dine-in and online orders
type OrderHeader struct {
	OrderID        string                         `gorm:"primaryKey;size:64" json:"order_id"`
	Username       string                         `gorm:"not null;index" json:"username"`
	OrderTime      time.Time                      `gorm:"not null;index" json:"order_time"`
	Items          datatypes.JSONSlice[OrderItem] `gorm:"not null" json:"items"`
	TotalAmt       float64                        `gorm:"not null" json:"total_amt"`
	OrderStatus    OrderStatus                    `gorm:"not null;default:'pending';index" json:"order_status"`
	PaymentStatus  PaymentStatus                  `gorm:"not null;default:'pending'" json:"payment_status"`
	CompletionTime *time.Time                     `json:"completion_time"` // set only once completed
	CreatedAt      time.Time                      `json:"created_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

// Header gives access to the shared fields of any order document
func (h *OrderHeader) Header() *OrderHeader {
	return h
}

// Order represents a dine-in order served at a table
type Order struct {
	OrderHeader
	TableNumber int `gorm:"not null" json:"table_number"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// Kind returns KindDine
func (*Order) Kind() Kind {
	return KindDine
}

// Assignee is always nil for dine-in orders
func (*Order) Assignee() *string {
	return nil
}

// OnlineOrder represents a delivery order
type OnlineOrder struct {
	OrderHeader
	Address       string  `gorm:"not null" json:"address"`
	MobileNumber  string  `gorm:"not null" json:"mobile_number"`
	DeliverymanID *string `gorm:"column:deliveryman_id;index" json:"deliverymanId"` // nil until assigned
}

// TableName specifies the table name for the OnlineOrder model
func (OnlineOrder) TableName() string {
	return "online_orders"
}

// Kind returns KindOnline
func (*OnlineOrder) Kind() Kind {
	return KindOnline
}

// Assignee returns the delivery agent ID, or nil if unassigned
func (o *OnlineOrder) Assignee() *string {
	return o.DeliverymanID
}

// Document is the common view of Order and OnlineOrder used by the
// notifier, stream filters and client views.
type Document interface {
	Header() *OrderHeader
	Kind() Kind
	Assignee() *string
}

// NewDocument returns an empty document of the given kind, ready to be
// loaded by gorm.
func NewDocument(kind Kind) Document {
	if kind == KindOnline {
		return &OnlineOrder{}
	}
	return &Order{}
}

// ComputeTotals fills in each item's TotalPrice and returns the order total
func ComputeTotals(items []OrderItem) float64 {
	var total float64
	for i := range items {
		items[i].TotalPrice = float64(items[i].Qty) * items[i].ItemPrice
		total += items[i].TotalPrice
	}
	return total
}
