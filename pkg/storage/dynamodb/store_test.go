package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
	"github.com/chris/neighborhood-packs/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

var tables = Tables{
	Packs:         "packs",
	Bookings:      "bookings",
	Exchanges:     "exchanges",
	Ratings:       "ratings",
	Notifications: "notifications",
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestPacks(t *testing.T) {
	pack := &models.Pack{ID: "p1", OwnerID: "owner", Title: "Fruta", Status: models.PackAvailable, TimeWindows: []string{"Hoy"}, Version: 1, CreatedAt: now, UpdatedAt: now}

	t.Run("Create", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return *in.TableName == "packs" && *in.ConditionExpression == "attribute_not_exists(id)"
		})).Once().Return(&dynamodb.PutItemOutput{}, nil)

		assert.NoError(t, store.CreatePack(context.Background(), pack))
		mockClient.AssertExpectations(t)
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		assert.ErrorIs(t, store.CreatePack(context.Background(), pack), storage.ErrAlreadyExists)
		mockClient.AssertExpectations(t)
	})

	t.Run("Get", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		packAV, _ := attributevalue.MarshalMap(pack)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Once().Return(&dynamodb.GetItemOutput{Item: packAV}, nil)

		got, err := store.GetPack(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, pack.Title, got.Title)
		assert.Equal(t, pack.TimeWindows, got.TimeWindows)
		assert.True(t, pack.CreatedAt.Equal(got.CreatedAt))
		mockClient.AssertExpectations(t)
	})

	t.Run("Get Missing", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

		_, err := store.GetPack(context.Background(), "p1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Get Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		_, err := store.GetPack(context.Background(), "p1")
		assert.ErrorContains(t, err, "failed to get item from packs")
	})

	t.Run("Delete", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want error
		}{
			{"Missing", &types.ConditionalCheckFailedException{}, storage.ErrNotFound},
			{"Moved", &types.ConditionalCheckFailedException{Item: map[string]types.AttributeValue{"id": str("p1")}}, storage.ErrConflict},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockClient := new(mocks.DynamoDBAPI)
				store := New(mockClient, tables)
				mockClient.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, tt.err)

				assert.ErrorIs(t, store.DeletePack(context.Background(), "p1", 3), tt.want)
			})
		}
	})

	t.Run("Status Change Guard Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		change := storage.PackChange{PackID: "p1", From: models.PackAvailable, To: models.PackArchived, Version: 2, At: now}
		assert.ErrorIs(t, store.UpdatePackStatus(context.Background(), change), storage.ErrPackUnavailable)
	})
}

func TestListAvailablePacks(t *testing.T) {
	gone := now.Add(-time.Minute)
	marshal := func(packs ...models.Pack) []map[string]types.AttributeValue {
		items := make([]map[string]types.AttributeValue, len(packs))
		for i, p := range packs {
			items[i], _ = attributevalue.MarshalMap(p)
		}
		return items
	}
	expired := models.Pack{ID: "old", Status: models.PackAvailable, ExpiresAt: &gone}
	p1 := models.Pack{ID: "p1", Status: models.PackAvailable}
	p2 := models.Pack{ID: "p2", Status: models.PackAvailable}
	p3 := models.Pack{ID: "p3", Status: models.PackAvailable}

	t.Run("Pages Until Limit Is Filled", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return *in.IndexName == packStatusIndex && in.ExclusiveStartKey == nil
		})).Once().Return(&dynamodb.QueryOutput{Items: marshal(expired, p1), LastEvaluatedKey: map[string]types.AttributeValue{"id": str("p1")}}, nil)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey != nil
		})).Once().Return(&dynamodb.QueryOutput{Items: marshal(p2, p3), LastEvaluatedKey: map[string]types.AttributeValue{"id": str("p3")}}, nil)

		list, err := store.ListAvailablePacks(context.Background(), now, 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "p1", list[0].ID)
		assert.Equal(t, "p2", list[1].ID)
		mockClient.AssertExpectations(t)
	})

	t.Run("Empty First Page", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey == nil
		})).Once().Return(&dynamodb.QueryOutput{LastEvaluatedKey: map[string]types.AttributeValue{"id": str("x")}}, nil)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey != nil
		})).Once().Return(&dynamodb.QueryOutput{Items: marshal(p1)}, nil)

		list, err := store.ListAvailablePacks(context.Background(), now, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "p1", list[0].ID)
		mockClient.AssertExpectations(t)
	})
}

func TestPackUpdate(t *testing.T) {
	store := New(nil, tables)
	pack := &models.Pack{ID: "p1", Version: 4}

	tests := []struct {
		name     string
		change   storage.PackChange
		wantExpr string
		wantCond string
	}{
		{
			name:     "Reserve",
			change:   storage.Reserve(pack, "booking:b1", now),
			wantExpr: "SET #status = :to, version = version + :inc, updated_at = :at, reserved_by = :holder",
			wantCond: "#status = :from AND version = :version",
		},
		{
			name:     "Touch",
			change:   storage.Touch(pack, now),
			wantExpr: "SET #status = :to, version = version + :inc, updated_at = :at REMOVE reserved_by",
			wantCond: "#status = :from AND version = :version",
		},
		{
			name:     "Release",
			change:   storage.Release("p1", "exchange:e1", now),
			wantExpr: "SET #status = :to, version = version + :inc, updated_at = :at REMOVE reserved_by",
			wantCond: "#status = :from AND reserved_by = :holder",
		},
		{
			name:     "Sell",
			change:   storage.Sell("p1", "booking:b1", now),
			wantExpr: "SET #status = :to, version = version + :inc, updated_at = :at",
			wantCond: "#status = :from AND reserved_by = :holder",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := store.packUpdate(tt.change)
			require.NoError(t, err)
			assert.Equal(t, "packs", *update.TableName)
			assert.Equal(t, tt.wantExpr, *update.UpdateExpression)
			assert.Equal(t, tt.wantCond, *update.ConditionExpression)
			assert.Equal(t, &types.AttributeValueMemberS{Value: string(tt.change.To)}, update.ExpressionAttributeValues[":to"])
		})
	}
}

func TestCreateBooking(t *testing.T) {
	pack := &models.Pack{ID: "p1", Status: models.PackAvailable, Version: 2}
	booking := &models.Booking{ID: "b1", PackID: "p1", BuyerID: "buyer", SellerID: "seller", PickupCode: "4821", Status: models.BookingPending, Version: 1, CreatedAt: now, UpdatedAt: now}
	change := storage.Reserve(pack, booking.Holder(), now)

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			if len(in.TransactItems) != 2 {
				return false
			}
			put, update := in.TransactItems[0].Put, in.TransactItems[1].Update
			return put != nil && *put.TableName == "bookings" &&
				update != nil && *update.TableName == "packs" &&
				update.ExpressionAttributeValues[":holder"].(*types.AttributeValueMemberS).Value == "booking:b1"
		})).Once().Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		assert.NoError(t, store.CreateBooking(context.Background(), booking, change))
		mockClient.AssertExpectations(t)
	})

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Pack Taken", cancelled("None", "ConditionalCheckFailed"), storage.ErrPackUnavailable},
		{"Concurrent Writer", cancelled("None", "TransactionConflict"), storage.ErrPackUnavailable},
		{"Duplicate Booking", cancelled("ConditionalCheckFailed", "None"), storage.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(mocks.DynamoDBAPI)
			store := New(mockClient, tables)
			mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.err)

			assert.ErrorIs(t, store.CreateBooking(context.Background(), booking, change), tt.want)
			mockClient.AssertExpectations(t)
		})
	}

	t.Run("Transaction Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("transaction failed"))

		err := store.CreateBooking(context.Background(), booking, change)
		assert.ErrorContains(t, err, "failed to execute booking transaction")
	})
}

func TestUpdateBooking(t *testing.T) {
	validated := now.Add(time.Hour)
	newBooking := func() *models.Booking {
		return &models.Booking{ID: "b1", PackID: "p1", Status: models.BookingCompleted, ValidatedBySeller: true, ValidatedByBuyer: true, ValidatedAt: &validated, Version: 3, UpdatedAt: validated}
	}
	sell := []storage.PackChange{storage.Sell("p1", "booking:b1", validated)}

	t.Run("Success Bumps Version", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			u := in.TransactItems[0].Update
			return len(in.TransactItems) == 2 &&
				*u.ConditionExpression == "version = :version" &&
				u.ExpressionAttributeValues[":version"].(*types.AttributeValueMemberN).Value == "3" &&
				u.ExpressionAttributeValues[":validated"] != nil
		})).Once().Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		b := newBooking()
		require.NoError(t, store.UpdateBooking(context.Background(), storage.BookingUpdate{Booking: b, Packs: sell}))
		assert.Equal(t, int64(4), b.Version)
		mockClient.AssertExpectations(t)
	})

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Stale Booking", cancelled("ConditionalCheckFailed", "None"), storage.ErrConflict},
		{"Pack Not Held", cancelled("None", "ConditionalCheckFailed"), storage.ErrPackMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(mocks.DynamoDBAPI)
			store := New(mockClient, tables)
			mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, tt.err)

			b := newBooking()
			err := store.UpdateBooking(context.Background(), storage.BookingUpdate{Booking: b, Packs: sell})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(3), b.Version)
		})
	}
}

func TestUpdateExchange(t *testing.T) {
	offered := &models.Pack{ID: "A", Version: 2}
	requested := &models.Pack{ID: "B", Version: 5}
	x := &models.Exchange{ID: "e1", OfferedPackID: "A", RequestedPackID: "B", Status: models.ExchangeAccepted, SelectedTimeWindow: "Mañana 09:00-12:00", Version: 1, UpdatedAt: now}
	reserve := []storage.PackChange{storage.Reserve(offered, x.Holder(), now), storage.Reserve(requested, x.Holder(), now)}

	t.Run("Second Pack Taken", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			return len(in.TransactItems) == 3 &&
				in.TransactItems[0].Update.ExpressionAttributeValues[":window"] != nil
		})).Return(nil, cancelled("None", "None", "ConditionalCheckFailed"))

		err := store.UpdateExchange(context.Background(), storage.ExchangeUpdate{Exchange: x, Packs: reserve})
		assert.ErrorIs(t, err, storage.ErrPackUnavailable)
		mockClient.AssertExpectations(t)
	})

	t.Run("Mark Expiry Notified Twice", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Once().Return(&dynamodb.UpdateItemOutput{}, nil)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Once().Return(nil, &types.ConditionalCheckFailedException{})

		assert.NoError(t, store.MarkExchangeExpiryNotified(context.Background(), "e1", now))
		assert.ErrorIs(t, store.MarkExchangeExpiryNotified(context.Background(), "e1", now), storage.ErrConflict)
		mockClient.AssertExpectations(t)
	})
}

func TestListExchanges(t *testing.T) {
	older := models.Exchange{ID: "e1", OfferedPackID: "A", RequestedPackID: "B", CreatedAt: now}
	newer := models.Exchange{ID: "e2", OfferedPackID: "B", RequestedPackID: "C", CreatedAt: now.Add(time.Hour)}
	olderAV, _ := attributevalue.MarshalMap(older)
	newerAV, _ := attributevalue.MarshalMap(newer)

	t.Run("By Pack Merges Both Slots", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		byIndex := func(index string) interface{} {
			return mock.MatchedBy(func(in *dynamodb.QueryInput) bool { return *in.IndexName == index })
		}
		mockClient.On("Query", mock.Anything, byIndex(exchangeRequestedIndex)).Once().
			Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{olderAV}}, nil)
		mockClient.On("Query", mock.Anything, byIndex(exchangeOfferedIndex)).Once().
			Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{newerAV, olderAV}}, nil)

		list, err := store.ListExchangesByPack(context.Background(), "B")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "e2", list[0].ID)
		assert.Equal(t, "e1", list[1].ID)
		mockClient.AssertExpectations(t)
	})

	t.Run("Follows Pages", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("Query", mock.Anything, mock.Anything).Once().
			Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{olderAV}, LastEvaluatedKey: map[string]types.AttributeValue{"id": str("e1")}}, nil)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey != nil
		})).Once().Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{newerAV}}, nil)

		list, err := store.ListExpiredPendingExchanges(context.Background(), now.Add(100*time.Hour))
		require.NoError(t, err)
		assert.Len(t, list, 2)
		mockClient.AssertExpectations(t)
	})

	t.Run("Query Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("index missing"))

		_, err := store.ListExchangesByUser(context.Background(), "alice")
		assert.ErrorContains(t, err, "failed to query requester_id-index")
	})
}

func TestRatings(t *testing.T) {
	rating := &models.Rating{ID: "r1", BookingID: "b1", RaterID: "buyer", RatedTo: "seller", Score: 5, CreatedAt: now, UpdatedAt: now}

	t.Run("Duplicate", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return *in.ConditionExpression == "attribute_not_exists(booking_id)"
		})).Return(nil, &types.ConditionalCheckFailedException{})

		assert.ErrorIs(t, store.CreateRating(context.Background(), rating), storage.ErrAlreadyExists)
	})

	t.Run("Update By Someone Else", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		assert.ErrorIs(t, store.UpdateRating(context.Background(), rating), storage.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		ratingAV, _ := attributevalue.MarshalMap(rating)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{ratingAV}}, nil)

		list, err := store.ListRatingsFor(context.Background(), "seller")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 5, list[0].Score)
	})
}

func TestNotifications(t *testing.T) {
	n := &models.Notification{ID: "n1", UserID: "u1", Type: models.NotifyBookingCreated, Title: "t", Message: "m", CreatedAt: now}

	t.Run("Redelivery", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		assert.ErrorIs(t, store.SaveNotification(context.Background(), n), storage.ErrAlreadyExists)
	})

	t.Run("List Newest First With Limit", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		nAV, _ := attributevalue.MarshalMap(n)
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return !*in.ScanIndexForward && *in.Limit == 20
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{nAV}}, nil)

		list, err := store.ListNotifications(context.Background(), "u1", 20)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "n1", list[0].ID)
		assert.Equal(t, models.NotifyBookingCreated, list[0].Type)
	})

	t.Run("Mark Read Of Other User", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, tables)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		assert.ErrorIs(t, store.MarkNotificationRead(context.Background(), "u2", "n1"), storage.ErrNotFound)
	})
}
