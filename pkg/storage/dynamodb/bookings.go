package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

// CreateBooking puts the booking and reserves its pack in one transaction.
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking, pack storage.PackChange) error {
	bookingAV, err := attributevalue.MarshalMap(booking)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}
	packItems, err := s.packUpdates([]storage.PackChange{pack})
	if err != nil {
		return err
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: append([]types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.Bookings),
					Item:                bookingAV,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
		}, packItems...),
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if mapped := transactError(err, storage.ErrAlreadyExists, []storage.PackChange{pack}); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to execute booking transaction: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by its ID.
func (s *Store) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.getItem(ctx, s.Tables.Bookings, stringKey("id", bookingID), &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *Store) listBookings(ctx context.Context, index, attr, value string) ([]models.Booking, error) {
	items, err := s.queryIndex(ctx, s.Tables.Bookings, index, attr, value)
	if err != nil {
		return nil, err
	}
	var bookings []models.Booking
	if err := attributevalue.UnmarshalListOfMaps(items, &bookings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bookings: %w", err)
	}
	return bookings, nil
}

func (s *Store) ListBookingsByPack(ctx context.Context, packID string) ([]models.Booking, error) {
	return s.listBookings(ctx, bookingPackIndex, "pack_id", packID)
}

func (s *Store) ListBookingsByBuyer(ctx context.Context, buyerID string) ([]models.Booking, error) {
	return s.listBookings(ctx, bookingBuyerIndex, "buyer_id", buyerID)
}

func (s *Store) ListBookingsBySeller(ctx context.Context, sellerID string) ([]models.Booking, error) {
	return s.listBookings(ctx, bookingSellerIndex, "seller_id", sellerID)
}

// UpdateBooking writes the booking's mutable state, conditional on the version
// the caller read, together with its pack changes.
func (s *Store) UpdateBooking(ctx context.Context, update storage.BookingUpdate) error {
	b := update.Booking
	updatedAV, err := attributevalue.Marshal(b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal booking update time: %w", err)
	}

	expr := "SET #status = :status, validated_by_seller = :vs, validated_by_buyer = :vb, updated_at = :updated, version = version + :inc"
	values := map[string]types.AttributeValue{
		":status":  str(string(b.Status)),
		":vs":      &types.AttributeValueMemberBOOL{Value: b.ValidatedBySeller},
		":vb":      &types.AttributeValueMemberBOOL{Value: b.ValidatedByBuyer},
		":updated": updatedAV,
		":inc":     number(1),
		":version": number(b.Version),
	}
	if b.ValidatedAt != nil {
		validatedAV, err := attributevalue.Marshal(*b.ValidatedAt)
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
					TableName:           aws.String(s.Tables.Bookings),
					Key:                 stringKey("id", b.ID),
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
		return fmt.Errorf("failed to execute booking update: %w", err)
	}

	b.Version++
	return nil
}
