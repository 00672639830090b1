package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 4
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher is the asynchronous Notifier used by the API. Notify enqueues on
// a bounded queue and returns at once; Run serves the queue with a fixed set
// of workers. A full queue, or a dispatcher that has stopped, drops the
// notification with a warning.
type Dispatcher struct {
	sink        Sink
	queue       chan models.Notification
	workers     int
	sendTimeout time.Duration
	logger      *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan models.Notification, n)
		}
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher delivering to sink.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		queue:       make(chan models.Notification, defaultQueueSize),
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Make sure we conform to the interface
var _ Notifier = (*Dispatcher)(nil)

// Notify enqueues n. The caller's context is not carried into delivery since
// the request usually ends before the send happens.
func (d *Dispatcher) Notify(_ context.Context, n models.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.logger.Warn("notification dispatcher stopped, dropping notification",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)))
		return
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping notification",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)))
	}
}

// Run blocks serving the queue until ctx is done, then drains what is left.
// Notify calls after Run returns are dropped and logged.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	err := g.Wait()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	// Anything enqueued while the workers were exiting.
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		default:
			return err
		}
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, n); err != nil {
		d.logger.Error("failed to deliver notification",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)),
			slog.Any("error", err))
		return
	}
	d.logger.Debug("notification delivered",
		slog.String("notification_id", n.ID),
		slog.String("type", string(n.Type)))
}
