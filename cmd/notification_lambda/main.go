package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chris/neighborhood-packs/pkg/config"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	dydbstore "github.com/chris/neighborhood-packs/pkg/storage/dynamodb"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

var sink notify.Sink

func init() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize dependencies once.
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	store := dydbstore.New(dynamodb.NewFromConfig(awsCfg), dydbstore.Tables{
		Packs:         cfg.PacksTable,
		Bookings:      cfg.BookingsTable,
		Exchanges:     cfg.ExchangesTable,
		Ratings:       cfg.RatingsTable,
		Notifications: cfg.NotificationsTable,
	})

	sinks := notify.Multi{&notify.StoreSink{Store: store}}
	if cfg.RedisAddr != "" {
		sinks = append(sinks, &notify.RedisSink{Client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})})
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("neighborhood-packs-notifications"))
		if err != nil {
			log.Fatalf("unable to connect to NATS, %v", err)
		}
		sinks = append(sinks, &notify.NATSSink{Conn: nc})
	}
	sink = sinks
}

// handleMessages delivers every queued notification and reports the ones that
// failed so SQS retries only those.
func handleMessages(ctx context.Context, s notify.Sink, sqsEvent events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		var n models.Notification
		if err := json.Unmarshal([]byte(message.Body), &n); err != nil {
			// A malformed body will never parse; retrying it only blocks the queue.
			slog.Error("failed to unmarshal notification", slog.String("message_id", message.MessageId), slog.Any("error", err))
			continue
		}

		if err := s.Send(ctx, n); err != nil {
			slog.Error("failed to deliver notification",
				slog.String("message_id", message.MessageId),
				slog.String("notification_id", n.ID),
				slog.Any("error", err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
			continue
		}

		slog.Debug("delivered notification", slog.String("notification_id", n.ID), slog.String("user_id", n.UserID))
	}
	return resp
}

// HandleRequest processes SQS messages from the notifications queue.
func HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	return handleMessages(ctx, sink, sqsEvent), nil
}

func main() {
	lambda.Start(HandleRequest)
}
