// Package order implements the order-state engine: the order document
// held per session, the directive language emitted by the response
// generator, mutation of the document from parsed directives, and
// diffing of document snapshots for client updates.
package order

import (
	"fmt"
	"math/rand"
	"time"
)

// Document statuses. Status tracks the latest intent label verbatim,
// so any generator-emitted label may also appear here.
const (
	StatusStart = "start"
	StatusEnd   = "end"
)

// Payment statuses.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// DefaultPaymentMethod is the method assumed until the customer pays.
const DefaultPaymentMethod = "現金"

// orderTimezone is UTC+8; order ids embed the local business date.
var orderTimezone = time.FixedZone("UTC+8", 8*60*60)

// Customization is the per-line customization note and its price
// surcharge per unit.
type Customization struct {
	Price int    `json:"cus_price"`
	Note  string `json:"note"`
}

// Line is one order line. Subtotal is the per-unit price including the
// customization surcharge, not multiplied by Quantity.
type Line struct {
	ID            string        `json:"id"`
	ItemID        string        `json:"item_id"`
	Class         string        `json:"class"`
	Name          string        `json:"name"`
	UnitPrice     int           `json:"unitPrice"`
	Subtotal      int           `json:"subtotal"`
	Quantity      int           `json:"quantity"`
	Customization Customization `json:"customization"`
}

// Customer holds optional pickup contact details.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Payment tracks how and whether the order was paid.
type Payment struct {
	Method string `json:"method"`
	Status string `json:"status"`
}

// Document is the full order state persisted per session and exposed
// to clients.
type Document struct {
	OrderID     string    `json:"order_id"`
	OrderTime   time.Time `json:"order_time"`
	TableNumber string    `json:"table_number"`
	Customer    Customer  `json:"customer"`
	Items       []Line    `json:"items"`
	TotalPrice  int       `json:"total_price"`
	Payment     Payment   `json:"payment"`
	OrderType   string    `json:"order_type"`
	Status      string    `json:"status"`
}

// IDSource generates order and line identifiers. Production code uses
// [RandomIDs]; tests substitute a deterministic source.
type IDSource interface {
	// OrderID returns a fresh order id for an order created at now.
	OrderID(now time.Time) string

	// LineID returns a fresh line id for a line of the given item.
	LineID(itemID string) string
}

// RandomIDs is the production IDSource: order ids are
// "ORD" + yyyymmdd (UTC+8) + four random digits, line ids are the item
// id followed by four random digits.
type RandomIDs struct{}

func (RandomIDs) OrderID(now time.Time) string {
	return fmt.Sprintf("ORD%s%04d", now.In(orderTimezone).Format("20060102"), rand.Intn(9000)+1000)
}

func (RandomIDs) LineID(itemID string) string {
	return fmt.Sprintf("%s%04d", itemID, rand.Intn(9000)+1000)
}

// NewDocument returns an empty order created at now.
func NewDocument(ids IDSource, now time.Time) Document {
	return Document{
		OrderID:   ids.OrderID(now),
		OrderTime: now.In(orderTimezone),
		Items:     []Line{},
		Payment:   Payment{Method: DefaultPaymentMethod, Status: PaymentUnpaid},
		Status:    StatusStart,
	}
}

// Clone returns a deep copy so snapshots can be diffed after mutation.
func (d Document) Clone() Document {
	cp := d
	cp.Items = make([]Line, len(d.Items))
	copy(cp.Items, d.Items)
	return cp
}
