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

// The ratings table is keyed by booking_id, which makes one rating per booking
// a key constraint.

func (s *Store) CreateRating(ctx context.Context, rating *models.Rating) error {
	ratingAV, err := attributevalue.MarshalMap(rating)
	if err != nil {
		return fmt.Errorf("failed to marshal rating: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.Ratings),
		Item:                ratingAV,
		ConditionExpression: aws.String("attribute_not_exists(booking_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create rating in DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) GetRatingByBooking(ctx context.Context, bookingID string) (*models.Rating, error) {
	var rating models.Rating
	if err := s.getItem(ctx, s.Tables.Ratings, stringKey("booking_id", bookingID), &rating); err != nil {
		return nil, err
	}
	return &rating, nil
}

func (s *Store) UpdateRating(ctx context.Context, rating *models.Rating) error {
	updatedAV, err := attributevalue.Marshal(rating.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal rating update time: %w", err)
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.Tables.Ratings),
		Key:                 stringKey("booking_id", rating.BookingID),
		UpdateExpression:    aws.String("SET score = :score, #comment = :comment, updated_at = :updated"),
		ConditionExpression: aws.String("rater_id = :rater"),
		ExpressionAttributeNames: map[string]string{
			"#comment": "comment",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":score":   number(int64(rating.Score)),
			":comment": str(rating.Comment),
			":updated": updatedAV,
			":rater":   str(rating.RaterID),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

func (s *Store) DeleteRating(ctx context.Context, bookingID, raterID string) error {
	_, err := s.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.Tables.Ratings),
		Key:                 stringKey("booking_id", bookingID),
		ConditionExpression: aws.String("rater_id = :rater"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rater": str(raterID),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to delete rating: %w", err)
	}
	return nil
}

func (s *Store) ListRatingsFor(ctx context.Context, userID string) ([]models.Rating, error) {
	items, err := s.queryIndex(ctx, s.Tables.Ratings, ratingRatedToIndex, "rated_to", userID)
	if err != nil {
		return nil, err
	}
	var ratings []models.Rating
	if err := attributevalue.UnmarshalListOfMaps(items, &ratings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ratings: %w", err)
	}
	return ratings, nil
}
