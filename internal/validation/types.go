package validation

import "time"

// SelectedOption is one customization group on a line item.
type SelectedOption struct {
	Category string   `json:"category" validate:"required"`
	Options  []string `json:"options"`
}

// Item is a single order line item. ItemPrice is the unit price in minor
// currency units.
type Item struct {
	ProductID       string           `json:"product" validate:"required"`
	Name            string           `json:"name"`
	Quantity        int              `json:"quantity" validate:"required,min=1"`
	SelectedOptions []SelectedOption `json:"selectedOptions" validate:"dive"`
	ItemPrice       int64            `json:"itemPrice" validate:"required,gt=0"`
}

// Address is the optional delivery address block.
type Address struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	District string `json:"district"`
	Notes    string `json:"notes"`
}

// CreateOrderRequest is the payload for POST /api/orders. All money fields
// are minor units; the struct-level validation recomputes the totals so a
// client-supplied total is never trusted verbatim.
type CreateOrderRequest struct {
	Items         []Item     `json:"items" validate:"required,min=1,dive"`
	Subtotal      int64      `json:"subtotal" validate:"required,gt=0"`
	Tax           int64      `json:"tax" validate:"gte=0"`
	DeliveryFee   int64      `json:"deliveryFee" validate:"gte=0"`
	Discount      int64      `json:"discount" validate:"gte=0"`
	Total         int64      `json:"total" validate:"required,gt=0"`
	PaymentMethod string     `json:"paymentMethod" validate:"required,oneof=cash card momo zalopay"`
	DeliveryType  string     `json:"deliveryType" validate:"required,oneof=pickup delivery dine-in"`
	DeliveryTime  *time.Time `json:"deliveryTime,omitempty"`
	Address       *Address   `json:"address,omitempty"`
	StoreID       string     `json:"store" validate:"required"`
}

// UpdateStatusRequest is the payload for PATCH /api/orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
