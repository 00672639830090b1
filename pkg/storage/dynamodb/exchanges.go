package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

// CreateExchange puts the exchange and applies its pack changes in one transaction.
func (s *Store) CreateExchange(ctx context.Context, exchange *models.Exchange, packs []storage.PackChange) error {
	exchangeAV, err := attributevalue.MarshalMap(exchange)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}
	packItems, err := s.packUpdates(packs)
	if err != nil {
		return err
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: append([]types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.Exchanges),
					Item:                exchangeAV,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
		}, packItems...),
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if mapped := transactError(err, storage.ErrAlreadyExists, packs); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to execute exchange transaction: %w", err)
	}
	return nil
}

// GetExchange retrieves an exchange by its ID.
func (s *Store) GetExchange(ctx context.Context, exchangeID string) (*models.Exchange, error) {
	var exchange models.Exchange
	if err := s.getItem(ctx, s.Tables.Exchanges, stringKey("id", exchangeID), &exchange); err != nil {
		return nil, err
	}
	return &exchange, nil
}

type indexKey struct {
	index string
	attr  string
}

// listExchangesUnion queries several single-key indexes for the same value and
// merges the results, newest first.
func (s *Store) listExchangesUnion(ctx context.Context, value string, indexes ...indexKey) ([]models.Exchange, error) {
	seen := make(map[string]bool)
	var out []models.Exchange
	for _, ik := range indexes {
		items, err := s.queryIndex(ctx, s.Tables.Exchanges, ik.index, ik.attr, value)
		if err != nil {
			return nil, err
		}
		var page []models.Exchange
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exchanges: %w", err)
		}
		for _, e := range page {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListExchangesByPack(ctx context.Context, packID string) ([]models.Exchange, error) {
	return s.listExchangesUnion(ctx, packID,
		indexKey{exchangeRequestedIndex, "requested_pack_id"},
		indexKey{exchangeOfferedIndex, "offered_pack_id"})
}

func (s *Store) ListExchangesByUser(ctx context.Context, userID string) ([]models.Exchange, error) {
	return s.listExchangesUnion(ctx, userID,
		indexKey{exchangeRequesterIndex, "requester_id"},
		indexKey{exchangeOwnerIndex, "owner_id"})
}

// ListExpiredPendingExchanges queries pending exchanges by expiry and skips
// those already announced.
func (s *Store) ListExpiredPendingExchanges(ctx context.Context, cutoff time.Time) ([]models.Exchange, error) {
	cutoffAV, err := attributevalue.Marshal(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cutoff time: %w", err)
	}

	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Exchanges),
		IndexName:              aws.String(exchangeStatusExpiryIndex),
		KeyConditionExpression: aws.String("#status = :pending AND expires_at < :cutoff"),
		FilterExpression:       aws.String("attribute_not_exists(expiry_notified_at)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": str(string(models.ExchangePending)),
			":cutoff":  cutoffAV,
		},
	})
	if err != nil {
		return nil, err
	}

	var exchanges []models.Exchange
	if err := attributevalue.UnmarshalListOfMaps(items, &exchanges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal expired exchanges: %w", err)
	}
	return exchanges, nil
}

// UpdateExchange writes the exchange's mutable state, conditional on the
// version the caller read, together with its pack changes.
func (s *Store) UpdateExchange(ctx context.Context, update storage.ExchangeUpdate) error {
	x := update.Exchange
	updatedAV, err := attributevalue.Marshal(x.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange update time: %w", err)
	}

	expr := "SET #status = :status, validated_by_requester = :vr, validated_by_owner = :vo, updated_at = :updated, version = version + :inc"
	values := map[string]types.AttributeValue{
		":status":  str(string(x.Status)),
		":vr":      &types.AttributeValueMemberBOOL{Value: x.ValidatedByRequester},
		":vo":      &types.AttributeValueMemberBOOL{Value: x.ValidatedByOwner},
		":updated": updatedAV,
		":inc":     number(1),
		":version": number(x.Version),
	}
	if x.SelectedTimeWindow != "" {
		expr += ", selected_time_window = :window"
		values[":window"] = str(x.SelectedTimeWindow)
	}
	if x.ValidatedAt != nil {
		validatedAV, err := attributevalue.Marshal(*x.ValidatedAt)
		if err != nil {
			return fmt.Errorf("failed to marshal validation time: %w", err)
		}
		expr += ", validated_at = :validated"
		values[":validated"] = validatedAV
	}

	packItems, err := s.packUpdates(update.Packs)
	if err != nil {
		return err
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: append([]types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:           aws.String(s.Tables.Exchanges),
					Key:                 stringKey("id", x.ID),
					UpdateExpression:    aws.String(expr),
					ConditionExpression: aws.String("version = :version"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: values,
				},
			},
		}, packItems...),
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if mapped := transactError(err, storage.ErrConflict, update.Packs); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to execute exchange update: %w", err)
	}

	x.Version++
	return nil
}

// MarkExchangeExpiryNotified stamps expiry_notified_at once.
func (s *Store) MarkExchangeExpiryNotified(ctx context.Context, exchangeID string, at time.Time) error {
	atAV, err := attributevalue.Marshal(at)
	if err != nil {
		return fmt.Errorf("failed to marshal expiry notification time: %w", err)
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.Tables.Exchanges),
		Key:                 stringKey("id", exchangeID),
		UpdateExpression:    aws.String("SET expiry_notified_at = :at"),
		ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(expiry_notified_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": atAV,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to mark exchange expiry notified: %w", err)
	}
	return nil
}
