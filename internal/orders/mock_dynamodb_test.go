package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory stand-in for the DynamoDB operations the
// ledger uses. It understands exactly the condition and update expressions
// this package writes. NOTE: intentionally minimal, not production-grade.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

// itemKey finds the primary key value in an item or key map.
func itemKey(attrs map[string]types.AttributeValue) (string, error) {
	// idempotency records also carry an order_id attribute, so probe the
	// idempotency key first
	for _, pk := range []string{"idempotency_key", "order_id"} {
		if av, ok := attrs[pk]; ok {
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return "", errors.New("non-string key")
			}
			return s.Value, nil
		}
	}
	return "", errors.New("missing key attribute")
}

func (m *mockDynamo) putLocked(tableName string, item map[string]types.AttributeValue, cond *string) error {
	key, err := itemKey(item)
	if err != nil {
		return err
	}
	t := m.table(tableName)
	if cond != nil && strings.HasPrefix(*cond, "attribute_not_exists(") {
		if _, exists := t[key]; exists {
			return &types.ConditionalCheckFailedException{}
		}
	}
	t[key] = item
	return nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putLocked(*params.TableName, params.Item, params.ConditionExpression); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func numValue(av types.AttributeValue) (int64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[key]
	if !ok {
		return nil, errors.New("item not found")
	}

	if params.ConditionExpression != nil {
		cond := *params.ConditionExpression
		switch {
		case cond == "version = :expected":
			expected, _ := numValue(params.ExpressionAttributeValues[":expected"])
			current, _ := numValue(item["version"])
			if expected != current {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case strings.HasPrefix(cond, "attribute_not_exists("):
			attr := strings.TrimSuffix(strings.TrimPrefix(cond, "attribute_not_exists("), ")")
			if _, exists := item[attr]; exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		default:
			return nil, errors.New("unsupported condition: " + cond)
		}
	}

	expr := ""
	if params.UpdateExpression != nil {
		expr = *params.UpdateExpression
	}
	vals := params.ExpressionAttributeValues
	switch {
	case strings.Contains(expr, "#s = :next"):
		item["status"] = vals[":next"]
		item["payment_status"] = vals[":ps"]
		item["updated_at"] = vals[":ua"]
		item["version"] = vals[":nv"]
	case strings.Contains(expr, "payment_intent_id = :pi"):
		item["payment_intent_id"] = vals[":pi"]
		item["updated_at"] = vals[":ua"]
		current, _ := numValue(item["version"])
		inc, _ := numValue(vals[":one"])
		item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+inc, 10)}
	default:
		return nil, errors.New("unsupported update expression: " + expr)
	}

	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []map[string]types.AttributeValue
	for _, item := range m.table(*params.TableName) {
		items = append(items, item)
	}
	return &dyn.ScanOutput{Items: items}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// check every condition before applying anything
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		key, err := itemKey(p.Item)
		if err != nil {
			return nil, err
		}
		if p.ConditionExpression != nil && strings.HasPrefix(*p.ConditionExpression, "attribute_not_exists(") {
			if _, exists := m.table(*p.TableName)[key]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			if err := m.putLocked(*p.TableName, p.Item, nil); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
