package idempotency

import (
	"context"
	"errors"
	"strings"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is an in-memory single-table stand-in keyed by idempotency_key.
type simpleMock struct {
	items map[string]map[string]types.AttributeValue
}

func newSimpleMock() *simpleMock {
	return &simpleMock{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(attrs map[string]types.AttributeValue) (string, error) {
	av, ok := attrs["idempotency_key"]
	if !ok {
		return "", errors.New("missing idempotency_key")
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("non-string idempotency_key")
	}
	return s.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	key, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists(") {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[key] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	key, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	key, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[key]
	if !ok {
		return nil, errors.New("item not found")
	}

	expr := ""
	if params.UpdateExpression != nil {
		expr = *params.UpdateExpression
	}
	vals := params.ExpressionAttributeValues
	switch {
	case strings.Contains(expr, ":done"):
		item["status"] = vals[":done"]
		item["response_body"] = vals[":rb"]
		item["response_status"] = vals[":rs"]
		item["updated_at"] = vals[":ua"]
	case strings.Contains(expr, ":failed"):
		item["status"] = vals[":failed"]
		item["note"] = vals[":n"]
		item["updated_at"] = vals[":ua"]
	default:
		return nil, errors.New("unsupported update expression: " + expr)
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		items = append(items, item)
	}
	return &dyn.ScanOutput{Items: items}, nil
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not supported by simpleMock")
}
