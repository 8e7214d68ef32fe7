package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/auth"
	"github.com/katinat-coffee/ordering-backend/internal/idempotency"
	"github.com/katinat-coffee/ordering-backend/internal/mailq"
	"github.com/katinat-coffee/ordering-backend/internal/orders"
	"github.com/katinat-coffee/ordering-backend/internal/payments"
	"github.com/katinat-coffee/ordering-backend/internal/validation"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

// Config groups dependencies for the order routes.
type Config struct {
	Ledger           *orders.Ledger
	Machine          *orders.Machine
	Gateway          *payments.Gateway
	Hub              PlacementNotifier
	Mail             orders.MailQueue
	Idempotency      *idempotency.Store
	IdempotencyTable string
	Verifier         *auth.Verifier
	Log              *logger.Logger
}

// PlacementNotifier announces newly placed orders. *notify.Hub satisfies it.
type PlacementNotifier interface {
	OrderPlaced(orderID, storeID string)
}

// RegisterOrderRoutes registers the order API under /api/orders.
func RegisterOrderRoutes(r *gin.Engine, cfg Config) {
	v := validation.New()
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("orders_handler")

	g := r.Group("/api/orders", auth.Middleware(cfg.Verifier))
	g.POST("", createOrder(cfg, v, log))
	g.GET("", auth.RequireRole(auth.RoleAdmin), listOrders(cfg))
	g.GET("/my-orders", myOrders(cfg))
	g.GET("/:id", getOrder(cfg))
	g.PATCH("/:id/status", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff), updateStatus(cfg, v))
	g.PATCH("/:id/cancel", cancelOrder(cfg))
	g.POST("/:id/payment-intent", createPaymentIntent(cfg))
}

func actorFrom(ident auth.Identity) orders.Actor {
	return orders.Actor{UserID: ident.UserID, Role: ident.Role, StoreID: ident.StoreID}
}

func createOrder(cfg Config, v *validatorv10.Validate, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ident, _ := auth.IdentityFrom(c)

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		order := buildOrder(&req, ident)
		rec := cfg.Idempotency.NewRecord(idempKey, order.OrderID)

		err := cfg.Ledger.CreateWithIdempotency(ctx, cfg.IdempotencyTable, rec, order)
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				replayDuplicate(c, cfg, idempKey, err)
				return
			}
			writeError(c, err)
			return
		}

		// Side effects after the durable write; both are best-effort.
		if cfg.Hub != nil {
			cfg.Hub.OrderPlaced(order.OrderID, order.StoreID)
		}
		if cfg.Mail != nil && order.CustomerEmail != "" {
			msg := mailq.Message{
				To:      order.CustomerEmail,
				Subject: "Order Confirmation - Katinat Coffee",
				Body:    fmt.Sprintf("Thank you for your order! Your order #%s has been received and is being processed.", order.OrderID),
				OrderID: order.OrderID,
			}
			if mailErr := cfg.Mail.Enqueue(ctx, msg); mailErr != nil {
				log.Warn("confirmation mail enqueue failed", "order_id", order.OrderID, "error", mailErr)
			}
		}

		body, _ := json.Marshal(order)
		_ = cfg.Idempotency.MarkDone(ctx, idempKey, string(body), http.StatusCreated)

		c.Header("Location", fmt.Sprintf("/api/orders/%s", order.OrderID))
		c.JSON(http.StatusCreated, order)
	}
}

func buildOrder(req *validation.CreateOrderRequest, ident auth.Identity) *orders.Order {
	items := make([]orders.Item, 0, len(req.Items))
	for _, it := range req.Items {
		opts := make([]orders.SelectedOption, 0, len(it.SelectedOptions))
		for _, o := range it.SelectedOptions {
			opts = append(opts, orders.SelectedOption{Category: o.Category, Options: o.Options})
		}
		items = append(items, orders.Item{
			ProductID:       it.ProductID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			SelectedOptions: opts,
			UnitPrice:       it.ItemPrice,
		})
	}

	var addr *orders.Address
	if req.Address != nil {
		addr = &orders.Address{
			Street:   req.Address.Street,
			City:     req.Address.City,
			District: req.Address.District,
			Notes:    req.Address.Notes,
		}
	}

	return &orders.Order{
		OrderID:       uuid.NewString(),
		UserID:        ident.UserID,
		CustomerEmail: ident.Email,
		StoreID:       req.StoreID,
		Items:         items,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		DeliveryFee:   req.DeliveryFee,
		Discount:      req.Discount,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		Fulfillment:   orders.Fulfillment(req.DeliveryType),
		DeliveryTime:  req.DeliveryTime,
		Address:       addr,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentUnpaid,
	}
}

// replayDuplicate resolves a duplicate Idempotency-Key submission from the
// stored record instead of creating a second order.
func replayDuplicate(c *gin.Context, cfg Config, idempKey string, createErr error) {
	ctx := c.Request.Context()
	rec, err := cfg.Idempotency.Get(ctx, idempKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record", "detail": createErr.Error()})
		return
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderId": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "orderId": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func listOrders(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := cfg.Ledger.Query(c.Request.Context(), orders.QueryFilter{})
		if err != nil {
			writeError(c, err)
			return
		}
		sortByCreatedDesc(all)
		c.JSON(http.StatusOK, gin.H{"count": len(all), "data": all})
	}
}

func myOrders(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, _ := auth.IdentityFrom(c)
		mine, err := cfg.Ledger.Query(c.Request.Context(), orders.QueryFilter{UserID: ident.UserID})
		if err != nil {
			writeError(c, err)
			return
		}
		sortByCreatedDesc(mine)
		c.JSON(http.StatusOK, gin.H{"count": len(mine), "data": mine})
	}
}

func getOrder(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, _ := auth.IdentityFrom(c)
		o, err := cfg.Ledger.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if o == nil {
			writeError(c, apperr.NotFound("order not found"))
			return
		}
		if ident.Role != auth.RoleAdmin && o.UserID != ident.UserID {
			writeError(c, apperr.Unauthorized("not authorized to view this order"))
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func updateStatus(cfg Config, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, _ := auth.IdentityFrom(c)

		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		target, ok := orders.ParseStatus(req.Status)
		if !ok {
			writeError(c, apperr.Validation("unrecognized status %q", req.Status))
			return
		}

		o, err := cfg.Machine.Advance(c.Request.Context(), c.Param("id"), target, actorFrom(ident))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func cancelOrder(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, _ := auth.IdentityFrom(c)
		o, err := cfg.Machine.Cancel(c.Request.Context(), c.Param("id"), actorFrom(ident))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func createPaymentIntent(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, _ := auth.IdentityFrom(c)
		intent, err := cfg.Gateway.CreateIntent(c.Request.Context(), c.Param("id"), actorFrom(ident))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, intent)
	}
}

func sortByCreatedDesc(list []orders.Order) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
