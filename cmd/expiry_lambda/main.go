package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/neighborhood-packs/pkg/config"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/notify"
	dydbstore "github.com/chris/neighborhood-packs/pkg/storage/dynamodb"
)

var engine exchange.Service

func init() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

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

	// Hand expiry notices to the notification lambda when the queue exists,
	// otherwise store them directly.
	var sink notify.Sink = &notify.StoreSink{Store: store}
	if cfg.NotificationsQueueURL != "" {
		sink = notify.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.NotificationsQueueURL)
	}

	engine = &exchange.Logging{Service: exchange.NewEngine(store,
		exchange.WithNotifier(notify.Direct{Sink: sink}),
		exchange.WithTTL(cfg.ExchangeTTL))}
}

// run announces expired proposals once.
func run(ctx context.Context, svc exchange.Service) error {
	slog.Info("checking for expired exchange proposals")

	n, err := svc.NotifyExpired(ctx)
	if err != nil {
		slog.Error("expiry run finished with errors", slog.Int("notified", n), slog.Any("error", err))
		return err
	}

	slog.Info("expiry run finished", slog.Int("notified", n))
	return nil
}

// HandleRequest is triggered by an EventBridge Schedule.
func HandleRequest(ctx context.Context) error {
	return run(ctx, engine)
}

func main() {
	lambda.Start(HandleRequest)
}
