package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// The monetary invariant is structural, not per-field: subtotal must be
	// the sum of the line items and total must equal the breakdown.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var itemSum int64
	for _, it := range req.Items {
		itemSum += it.ItemPrice * int64(it.Quantity)
	}
	if itemSum != req.Subtotal {
		sl.ReportError(req.Subtotal, "subtotal", "Subtotal", "subtotal_match_items",
			fmt.Sprintf("items sum %d != subtotal %d", itemSum, req.Subtotal))
	}

	if want := req.Subtotal + req.Tax + req.DeliveryFee - req.Discount; want != req.Total {
		sl.ReportError(req.Total, "total", "Total", "total_match_breakdown",
			fmt.Sprintf("expected total %d, got %d", want, req.Total))
	}
}
