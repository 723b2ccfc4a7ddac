package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Get retrieves a record by email (strongly consistent).
func (s *DynamoDBStore) Get(ctx context.Context, email string) (*types.ContractRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: contractPK(store.NormalizeEmail(email))},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: skRecord},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get contract %q: %w", email, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return decodeRecord(out.Item)
}

// GetByEnvelope resolves a record through the envelope index. The index is
// eventually consistent; callers re-read with Get before writing.
func (s *DynamoDBStore) GetByEnvelope(ctx context.Context, envelopeID string) (*types.ContractRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(indexEnvelope),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: envelopePK(envelopeID)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query envelope %q: %w", envelopeID, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	rec, err := decodeRecord(out.Items[0])
	if err != nil {
		return nil, err
	}
	if rec.EnvelopeID != envelopeID {
		return nil, nil
	}
	return rec, nil
}

// Upsert writes the record unless the stored one is already terminal.
func (s *DynamoDBStore) Upsert(ctx context.Context, rec types.ContractRecord) error {
	item, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      aws.String(condUpsert),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":signed":   &ddbtypes.AttributeValueMemberS{Value: string(types.ContractSigned)},
			":declined": &ddbtypes.AttributeValueMemberS{Value: string(types.ContractDeclined)},
			":voided":   &ddbtypes.AttributeValueMemberS{Value: string(types.ContractVoided)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("%w: contract %q is already terminal", failure.ErrConflictingTerminalState, rec.Email)
		}
		return fmt.Errorf("put contract %q: %w", rec.Email, err)
	}
	return nil
}

// CompareAndSwap replaces the record if its status still equals expected
// and it is still bound to next.EnvelopeID.
func (s *DynamoDBStore) CompareAndSwap(ctx context.Context, email string, expected types.ContractStatus, next types.ContractRecord) (bool, error) {
	next.Email = email
	item, err := encodeRecord(next)
	if err != nil {
		return false, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      aws.String(condCAS),
		ExpressionAttributeNames: map[string]string{"#status": "status", "#envelope": "envelopeId"},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberS{Value: string(expected)},
			":envelope": &ddbtypes.AttributeValueMemberS{Value: next.EnvelopeID},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("swap contract %q: %w", email, err)
	}
	return true, nil
}

// ListByStatus queries the status index, oldest update first.
func (s *DynamoDBStore) ListByStatus(ctx context.Context, status types.ContractStatus, limit int) ([]types.ContractRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		records  []types.ContractRecord
		startKey map[string]ddbtypes.AttributeValue
	)
	for len(records) < limit {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			IndexName:              aws.String(indexStatus),
			KeyConditionExpression: aws.String("GSI2PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: statusPK(status)},
			},
			ScanIndexForward:  aws.Bool(true),
			Limit:             aws.Int32(int32(limit - len(records))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query status %s: %w", status, err)
		}
		for _, item := range out.Items {
			rec, err := decodeRecord(item)
			if err != nil {
				s.logger.Warn("skipping corrupt contract record", "error", err)
				continue
			}
			records = append(records, *rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return records, nil
}

func encodeRecord(rec types.ContractRecord) (map[string]ddbtypes.AttributeValue, error) {
	rec.Email = store.NormalizeEmail(rec.Email)
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal contract %q: %w", rec.Email, err)
	}
	item[attrPK] = &ddbtypes.AttributeValueMemberS{Value: contractPK(rec.Email)}
	item[attrSK] = &ddbtypes.AttributeValueMemberS{Value: skRecord}
	if rec.EnvelopeID != "" {
		item[attrGSI1PK] = &ddbtypes.AttributeValueMemberS{Value: envelopePK(rec.EnvelopeID)}
		item[attrGSI1SK] = &ddbtypes.AttributeValueMemberS{Value: skRecord}
	}
	item[attrGSI2PK] = &ddbtypes.AttributeValueMemberS{Value: statusPK(rec.Status)}
	item[attrGSI2SK] = &ddbtypes.AttributeValueMemberS{Value: statusSK(rec.UpdatedAt, rec.Email)}
	return item, nil
}

func decodeRecord(item map[string]ddbtypes.AttributeValue) (*types.ContractRecord, error) {
	var rec types.ContractRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal contract: %w", err)
	}
	return &rec, nil
}
