package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/aws"
)

// ErrVersionConflict signals a lost compare-and-swap: the stored version no
// longer matches what the caller read. The caller re-reads and retries.
var ErrVersionConflict = errors.New("order version conflict")

// Ledger is the single source of truth for order state. Orders are created
// once, mutated only through version-guarded writes, and never deleted.
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewLedger creates a Ledger over the orders table.
func NewLedger(client aws.DynamoDBAPI, tableName string) *Ledger {
	return &Ledger{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. The monetary invariant is checked here so a
// client-supplied total can never reach storage unverified.
func (l *Ledger) Create(ctx context.Context, order *Order) error {
	if err := l.prepareForCreate(order); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return apperr.Conflict("order %s already exists", order.OrderID)
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotency atomically creates the idempotency record (guarded
// by attribute_not_exists(idempotency_key)) and the order in one
// TransactWriteItems call, so a duplicate submission can never produce a
// second order.
func (l *Ledger) CreateWithIdempotency(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order *Order) error {
	if err := l.prepareForCreate(order); err != nil {
		return err
	}

	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = l.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &l.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return apperr.Conflict("duplicate submission for idempotency key")
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func (l *Ledger) prepareForCreate(order *Order) error {
	if err := order.CheckTotals(); err != nil {
		return err
	}
	now := l.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = StatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = PaymentUnpaid
	}
	if order.Version == 0 {
		order.Version = 1
	}
	return nil
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (l *Ledger) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// CommitTransition writes the new status and payment status, guarded on the
// version the caller read. On success the in-memory order is advanced to the
// committed state; on a lost race it returns ErrVersionConflict untouched.
func (l *Ledger) CommitTransition(ctx context.Context, order *Order, next Status, nextPayment PaymentStatus) error {
	now := l.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: order.OrderID},
		},
		UpdateExpression: awsString("SET #s = :next, payment_status = :ps, updated_at = :ua, version = :nv"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next":     &types.AttributeValueMemberS{Value: string(next)},
			":ps":       &types.AttributeValueMemberS{Value: string(nextPayment)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":nv":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", order.Version+1)},
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", order.Version)},
		},
		ConditionExpression: awsString("version = :expected"),
	}

	_, err := l.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrVersionConflict
		}
		return fmt.Errorf("commit transition: %w", err)
	}

	order.Status = next
	order.PaymentStatus = nextPayment
	order.Version++
	order.UpdatedAt = now
	return nil
}

// AttachPaymentIntent records the processor's intent reference on the order.
// At most one intent may be active: a second attach is a conflict.
func (l *Ledger) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	now := l.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET payment_intent_id = :pi, updated_at = :ua, version = version + :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pi":  &types.AttributeValueMemberS{Value: intentID},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: awsString("attribute_not_exists(payment_intent_id)"),
	}

	_, err := l.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return apperr.Conflict("order %s already has an active payment intent", orderID)
		}
		return fmt.Errorf("attach payment intent: %w", err)
	}
	return nil
}

// FindByPaymentIntent locates the order a processor callback refers to.
// Returns (nil, nil) when no order carries the intent.
func (l *Ledger) FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error) {
	all, err := l.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PaymentIntentID == intentID {
			return &all[i], nil
		}
	}
	return nil, nil
}

// QueryFilter narrows a ledger query. Zero values mean "any".
type QueryFilter struct {
	Statuses []Status
	From     time.Time // inclusive, on CreatedAt
	To       time.Time // inclusive, on CreatedAt
	StoreID  string
	UserID   string
}

func (f QueryFilter) matches(o *Order) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	if f.StoreID != "" && o.StoreID != f.StoreID {
		return false
	}
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	return true
}

// Query returns the orders matching the filter. This is the analytics read
// boundary; it never mutates.
func (l *Ledger) Query(ctx context.Context, f QueryFilter) ([]Order, error) {
	all, err := l.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Order, 0, len(all))
	for i := range all {
		if f.matches(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	return matched, nil
}

func (l *Ledger) scanAll(ctx context.Context) ([]Order, error) {
	var out []Order
	var startKey map[string]types.AttributeValue
	for {
		page, err := l.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &l.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var orders []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &orders); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, orders...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

func awsString(s string) *string { return &s }
