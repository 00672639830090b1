package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

// CreatePack stores a new pack record.
func (s *Store) CreatePack(ctx context.Context, pack *models.Pack) error {
	packAV, err := attributevalue.MarshalMap(pack)
	if err != nil {
		return fmt.Errorf("failed to marshal pack: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.Packs),
		Item:                packAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create pack in DynamoDB: %w", err)
	}
	return nil
}

// GetPack retrieves a pack by its ID.
func (s *Store) GetPack(ctx context.Context, packID string) (*models.Pack, error) {
	var pack models.Pack
	if err := s.getItem(ctx, s.Tables.Packs, stringKey("id", packID), &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// ListPacksByOwner retrieves all packs listed by a user.
func (s *Store) ListPacksByOwner(ctx context.Context, ownerID string) ([]models.Pack, error) {
	items, err := s.queryIndex(ctx, s.Tables.Packs, packOwnerIndex, "owner_id", ownerID)
	if err != nil {
		return nil, err
	}
	var packs []models.Pack
	if err := attributevalue.UnmarshalListOfMaps(items, &packs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packs: %w", err)
	}
	return packs, nil
}

// ListAvailablePacks retrieves the newest available packs. Expired packs keep
// their stored status, so pages are read until limit unexpired packs are found.
func (s *Store) ListAvailablePacks(ctx context.Context, now time.Time, limit int32) ([]models.Pack, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Packs),
		IndexName:              aws.String(packStatusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": str(string(models.PackAvailable)),
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	var packs []models.Pack
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query for available packs: %w", err)
		}

		var page []models.Pack
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal available packs: %w", err)
		}
		for _, p := range page {
			if !p.IsAvailable(now) {
				continue
			}
			packs = append(packs, p)
			if limit > 0 && len(packs) == int(limit) {
				return packs, nil
			}
		}

		if len(result.LastEvaluatedKey) == 0 {
			return packs, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// UpdatePackStatus applies a single guarded status change.
func (s *Store) UpdatePackStatus(ctx context.Context, change storage.PackChange) error {
	update, err := s.packUpdate(change)
	if err != nil {
		return err
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 update.TableName,
		Key:                       update.Key,
		UpdateExpression:          update.UpdateExpression,
		ConditionExpression:       update.ConditionExpression,
		ExpressionAttributeNames:  update.ExpressionAttributeNames,
		ExpressionAttributeValues: update.ExpressionAttributeValues,
	})
	if err != nil {
		if isConditionFailed(err) {
			return change.FailureErr()
		}
		return fmt.Errorf("failed to update pack status: %w", err)
	}
	return nil
}

// DeletePack removes a pack if its version did not move and it is not reserved.
func (s *Store) DeletePack(ctx context.Context, packID string, version int64) error {
	_, err := s.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.Tables.Packs),
		Key:                 stringKey("id", packID),
		ConditionExpression: aws.String("attribute_exists(id) AND version = :version AND #status <> :reserved"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":version":  number(version),
			":reserved": str(string(models.PackReserved)),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if ccf.Item == nil {
				return storage.ErrNotFound
			}
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to delete pack from DynamoDB: %w", err)
	}
	return nil
}

// packUpdate translates a guarded pack change into a transactional update.
func (s *Store) packUpdate(c storage.PackChange) (*types.Update, error) {
	atAV, err := attributevalue.Marshal(c.At)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pack update time: %w", err)
	}

	expr := "SET #status = :to, version = version + :inc, updated_at = :at"
	cond := "#status = :from"
	values := map[string]types.AttributeValue{
		":to":   str(string(c.To)),
		":from": str(string(c.From)),
		":inc":  number(1),
		":at":   atAV,
	}

	if c.Version != 0 {
		cond += " AND version = :version"
		values[":version"] = number(c.Version)
	}
	if c.From == models.PackReserved || c.To == models.PackReserved {
		values[":holder"] = str(c.Holder)
	}
	if c.From == models.PackReserved {
		cond += " AND reserved_by = :holder"
	}
	switch c.To {
	case models.PackReserved:
		expr += ", reserved_by = :holder"
	case models.PackAvailable:
		expr += " REMOVE reserved_by"
	}

	return &types.Update{
		TableName:           aws.String(s.Tables.Packs),
		Key:                 stringKey("id", c.PackID),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
	}, nil
}

func (s *Store) packUpdates(changes []storage.PackChange) ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(changes))
	for _, c := range changes {
		update, err := s.packUpdate(c)
		if err != nil {
			return nil, err
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}
	return items, nil
}
