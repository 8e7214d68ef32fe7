package validation

import (
	"strings"
	"testing"

	validatorv10 "github.com/go-playground/validator/v10"
)

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []Item{
			{ProductID: "prod-latte", Name: "Latte", Quantity: 2, ItemPrice: 32000},
		},
		Subtotal:      64000,
		Tax:           6400,
		DeliveryFee:   15000,
		Discount:      0,
		Total:         85400,
		PaymentMethod: "card",
		DeliveryType:  "delivery",
		StoreID:       "store-1",
	}
}

func hasTag(err error, tag string) bool {
	verrs, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return false
	}
	for _, fe := range verrs {
		if fe.Tag() == tag {
			return true
		}
	}
	return false
}

func TestValidRequest(t *testing.T) {
	v := New()
	if err := v.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestTotalMismatch(t *testing.T) {
	v := New()
	req := validRequest()
	req.Total = 80000
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !hasTag(err, "total_match_breakdown") {
		t.Errorf("expected total_match_breakdown, got %v", err)
	}
}

func TestSubtotalMismatch(t *testing.T) {
	v := New()
	req := validRequest()
	req.Subtotal = 60000
	req.Total = 81400
	err := v.Struct(req)
	if !hasTag(err, "subtotal_match_items") {
		t.Errorf("expected subtotal_match_items, got %v", err)
	}
}

func TestMissingItems(t *testing.T) {
	v := New()
	req := validRequest()
	req.Items = nil
	if err := v.Struct(req); err == nil {
		t.Fatal("expected failure for missing items")
	}
}

func TestZeroQuantity(t *testing.T) {
	v := New()
	req := validRequest()
	req.Items[0].Quantity = 0
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected failure for zero quantity")
	}
	if !strings.Contains(err.Error(), "Quantity") {
		t.Errorf("expected quantity error, got %v", err)
	}
}

func TestInvalidPaymentMethod(t *testing.T) {
	v := New()
	req := validRequest()
	req.PaymentMethod = "bitcoin"
	if !hasTag(v.Struct(req), "oneof") {
		t.Error("expected oneof failure for payment method")
	}
}

func TestInvalidDeliveryType(t *testing.T) {
	v := New()
	req := validRequest()
	req.DeliveryType = "drone"
	if !hasTag(v.Struct(req), "oneof") {
		t.Error("expected oneof failure for delivery type")
	}
}

func TestMissingStore(t *testing.T) {
	v := New()
	req := validRequest()
	req.StoreID = ""
	if err := v.Struct(req); err == nil {
		t.Fatal("expected failure for missing store")
	}
}

func TestNegativeDiscount(t *testing.T) {
	v := New()
	req := validRequest()
	req.Discount = -500
	req.Total = 85900
	if err := v.Struct(req); err == nil {
		t.Fatal("expected failure for negative discount")
	}
}
