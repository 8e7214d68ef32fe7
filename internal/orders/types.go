package orders

import (
	"time"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
)

// Status is the order lifecycle state. The set is closed: anything else is
// rejected at the boundary by ParseStatus.
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusPreparing     Status = "preparing"
	StatusReady         Status = "ready"
	StatusDelivering    Status = "delivering"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
)

// ParseStatus maps a wire string onto the closed status set.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusDelivering, StatusCompleted, StatusCancelled, StatusPaymentFailed:
		return Status(s), true
	}
	return "", false
}

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusPaymentFailed:
		return true
	}
	return false
}

// PaymentStatus tracks the payment outcome, correlated with but independent
// of the order status.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

// Fulfillment is how the order reaches the customer.
type Fulfillment string

const (
	FulfillmentPickup   Fulfillment = "pickup"
	FulfillmentDelivery Fulfillment = "delivery"
	FulfillmentDineIn   Fulfillment = "dine-in"
)

// SelectedOption is one customization group chosen for a line item.
type SelectedOption struct {
	Category string   `dynamodbav:"category" json:"category"`
	Options  []string `dynamodbav:"options,omitempty" json:"options,omitempty"`
}

// Item is one order line. UnitPrice is in minor currency units.
type Item struct {
	ProductID       string           `dynamodbav:"product_id" json:"product"`
	Name            string           `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity        int              `dynamodbav:"quantity" json:"quantity"`
	SelectedOptions []SelectedOption `dynamodbav:"selected_options,omitempty" json:"selectedOptions,omitempty"`
	UnitPrice       int64            `dynamodbav:"unit_price" json:"itemPrice"`
}

// Address is the delivery address block.
type Address struct {
	Street   string `dynamodbav:"street,omitempty" json:"street,omitempty"`
	City     string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	District string `dynamodbav:"district,omitempty" json:"district,omitempty"`
	Notes    string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
}

// Order is the item stored in the orders DynamoDB table. All money fields
// are integral minor units; Version is the compare-and-swap token bumped on
// every write.
type Order struct {
	OrderID         string        `dynamodbav:"order_id" json:"orderId"` // PK
	UserID          string        `dynamodbav:"user_id" json:"userId"`
	CustomerEmail   string        `dynamodbav:"customer_email,omitempty" json:"-"`
	StoreID         string        `dynamodbav:"store_id,omitempty" json:"store,omitempty"`
	Items           []Item        `dynamodbav:"items" json:"items"`
	Subtotal        int64         `dynamodbav:"subtotal" json:"subtotal"`
	Tax             int64         `dynamodbav:"tax" json:"tax"`
	DeliveryFee     int64         `dynamodbav:"delivery_fee" json:"deliveryFee"`
	Discount        int64         `dynamodbav:"discount" json:"discount"`
	Total           int64         `dynamodbav:"total" json:"total"`
	PaymentMethod   string        `dynamodbav:"payment_method" json:"paymentMethod"`
	Fulfillment     Fulfillment   `dynamodbav:"fulfillment" json:"deliveryType"`
	DeliveryTime    *time.Time    `dynamodbav:"delivery_time,omitempty" json:"deliveryTime,omitempty"`
	Address         *Address      `dynamodbav:"address,omitempty" json:"address,omitempty"`
	Status          Status        `dynamodbav:"status" json:"status"`
	PaymentStatus   PaymentStatus `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentIntentID string        `dynamodbav:"payment_intent_id,omitempty" json:"-"`
	Version         int64         `dynamodbav:"version" json:"-"`
	CreatedAt       time.Time     `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `dynamodbav:"updated_at" json:"updatedAt"`
}

// CheckTotals enforces the monetary invariant on every write:
// subtotal must equal the line items and total must equal the breakdown.
func (o *Order) CheckTotals() error {
	var sum int64
	for _, it := range o.Items {
		if it.Quantity < 1 {
			return apperr.Validation("item %s: quantity must be at least 1, got %d", it.ProductID, it.Quantity)
		}
		sum += it.UnitPrice * int64(it.Quantity)
	}
	if sum != o.Subtotal {
		return apperr.Validation("subtotal mismatch: items sum to %d, subtotal is %d", sum, o.Subtotal)
	}
	if want := o.Subtotal + o.Tax + o.DeliveryFee - o.Discount; want != o.Total {
		return apperr.Validation("total mismatch: expected %d, got %d", want, o.Total)
	}
	return nil
}
