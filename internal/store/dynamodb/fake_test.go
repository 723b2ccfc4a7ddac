package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/store/storetest"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// fakeDDB is an in-memory table that understands the store's own key
// layout and condition expressions.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[string]ddbtypes.AttributeValue
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func str(item map[string]ddbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk := str(in.Item, attrPK)
	cur, exists := f.items[pk]
	failed := &ddbtypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}

	switch cond := aws.ToString(in.ConditionExpression); cond {
	case "":
	case condUpsert:
		if exists && lifecycle.IsTerminal(types.ContractStatus(str(cur, "status"))) {
			return nil, failed
		}
	case condCAS:
		if !exists || str(cur, "status") != str(in.ExpressionAttributeValues, ":expected") ||
			str(cur, "envelopeId") != str(in.ExpressionAttributeValues, ":envelope") {
			return nil, failed
		}
	default:
		return nil, fmt.Errorf("fake: unsupported condition %q", cond)
	}

	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key, attrPK)]}, nil
}

func (f *fakeDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pkAttr, skAttr := attrGSI1PK, attrGSI1SK
	if aws.ToString(in.IndexName) == indexStatus {
		pkAttr, skAttr = attrGSI2PK, attrGSI2SK
	}
	want := str(in.ExpressionAttributeValues, ":pk")

	var out []map[string]ddbtypes.AttributeValue
	for _, item := range f.items {
		if str(item, pkAttr) == want {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i], skAttr) < str(out[j], skAttr) })
	if in.Limit != nil && int(*in.Limit) < len(out) {
		out = out[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDDB) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{TableName: in.TableName}}, nil
}

func (f *fakeDDB) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func TestConformance(t *testing.T) {
	storetest.RunAll(t, NewFromClient(newFakeDDB(), "contracts"))
}
