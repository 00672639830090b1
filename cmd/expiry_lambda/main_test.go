package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingService struct {
	exchange.Service
}

func (failingService) NotifyExpired(context.Context) (int, error) {
	return 0, errors.New("boom")
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	t.Run("announces expired proposals once", func(t *testing.T) {
		store := memory.New()
		clk := clock.NewManual(start)
		for _, p := range []struct{ id, owner string }{{"A", "alice"}, {"B", "bob"}} {
			store.SetPack(models.Pack{
				ID: p.id, OwnerID: p.owner, Title: "Pack " + p.id,
				Status: models.PackAvailable, TimeWindows: []string{"Hoy 15:00-18:00"},
				Version: 1, CreatedAt: start, UpdatedAt: start,
			})
		}
		engine := exchange.NewEngine(store,
			exchange.WithClock(clk),
			exchange.WithNotifier(notify.Direct{Sink: &notify.StoreSink{Store: store}}),
			exchange.WithTTL(time.Hour))

		_, err := engine.ProposeExchange(ctx, exchange.ProposeInput{RequesterID: "alice", RequestedPackID: "B", OfferedPackID: "A"})
		require.NoError(t, err)

		clk.Advance(2 * time.Hour)
		require.NoError(t, run(ctx, engine))
		require.NoError(t, run(ctx, engine))

		for _, user := range []string{"alice", "bob"} {
			list, err := store.ListNotifications(ctx, user, 0)
			require.NoError(t, err)
			var expired int
			for _, n := range list {
				if n.Type == models.NotifyExchangeExpired {
					expired++
				}
			}
			assert.Equal(t, 1, expired, user)
		}
	})

	t.Run("returns errors", func(t *testing.T) {
		assert.EqualError(t, run(ctx, failingService{}), "boom")
	})
}
