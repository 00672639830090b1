package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/storage"
)

// Store implements the Storage interface in process memory. Every write runs
// its guards and mutations under one lock, which gives the same all-or-nothing
// behaviour as the DynamoDB and Postgres backends.
type Store struct {
	mu            sync.Mutex
	packs         map[string]models.Pack
	bookings      map[string]models.Booking
	exchanges     map[string]models.Exchange
	ratings       map[string]models.Rating // keyed by booking ID
	notifications map[string]models.Notification
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		packs:         make(map[string]models.Pack),
		bookings:      make(map[string]models.Booking),
		exchanges:     make(map[string]models.Exchange),
		ratings:       make(map[string]models.Rating),
		notifications: make(map[string]models.Notification),
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

func copyPack(p models.Pack) models.Pack {
	p.TimeWindows = slices.Clone(p.TimeWindows)
	return p
}

// checkPack verifies a change's guard against the current state. Caller holds mu.
func (s *Store) checkPack(c storage.PackChange) error {
	p, ok := s.packs[c.PackID]
	if !ok || p.Status != c.From {
		return c.FailureErr()
	}
	if c.Version != 0 && p.Version != c.Version {
		return c.FailureErr()
	}
	if c.From == models.PackReserved && p.ReservedBy != c.Holder {
		return c.FailureErr()
	}
	return nil
}

// applyPack mutates a pack whose guard already passed. Caller holds mu.
func (s *Store) applyPack(c storage.PackChange) {
	p := s.packs[c.PackID]
	p.Status = c.To
	p.Version++
	p.UpdatedAt = c.At
	switch c.To {
	case models.PackReserved:
		p.ReservedBy = c.Holder
	case models.PackAvailable:
		p.ReservedBy = ""
	}
	s.packs[c.PackID] = p
}

func (s *Store) checkPacks(changes []storage.PackChange) error {
	for _, c := range changes {
		if err := s.checkPack(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyPacks(changes []storage.PackChange) {
	for _, c := range changes {
		s.applyPack(c)
	}
}

// Packs

func (s *Store) CreatePack(ctx context.Context, pack *models.Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packs[pack.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.packs[pack.ID] = copyPack(*pack)
	return nil
}

func (s *Store) GetPack(ctx context.Context, packID string) (*models.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p = copyPack(p)
	return &p, nil
}

func (s *Store) ListPacksByOwner(ctx context.Context, ownerID string) ([]models.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Pack
	for _, p := range s.packs {
		if p.OwnerID == ownerID {
			out = append(out, copyPack(p))
		}
	}
	sortNewest(out, func(p models.Pack) time.Time { return p.CreatedAt })
	return out, nil
}

func (s *Store) ListAvailablePacks(ctx context.Context, now time.Time, limit int32) ([]models.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Pack
	for _, p := range s.packs {
		if p.IsAvailable(now) {
			out = append(out, copyPack(p))
		}
	}
	sortNewest(out, func(p models.Pack) time.Time { return p.CreatedAt })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdatePackStatus(ctx context.Context, change storage.PackChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPack(change); err != nil {
		return err
	}
	s.applyPack(change)
	return nil
}

func (s *Store) DeletePack(ctx context.Context, packID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok {
		return storage.ErrNotFound
	}
	if p.Version != version || p.Status == models.PackReserved {
		return storage.ErrConflict
	}
	delete(s.packs, packID)
	return nil
}

// SetPack overwrites a pack unconditionally. Test fixtures use it to simulate
// out-of-band writes.
func (s *Store) SetPack(pack models.Pack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packs[pack.ID] = copyPack(pack)
}

// Bookings

func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking, pack storage.PackChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[booking.ID]; ok {
		return storage.ErrAlreadyExists
	}
	if err := s.checkPack(pack); err != nil {
		return err
	}
	s.applyPack(pack)
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (s *Store) listBookings(match func(models.Booking) bool) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sortNewest(out, func(b models.Booking) time.Time { return b.CreatedAt })
	return out
}

func (s *Store) ListBookingsByPack(ctx context.Context, packID string) ([]models.Booking, error) {
	return s.listBookings(func(b models.Booking) bool { return b.PackID == packID }), nil
}

func (s *Store) ListBookingsByBuyer(ctx context.Context, buyerID string) ([]models.Booking, error) {
	return s.listBookings(func(b models.Booking) bool { return b.BuyerID == buyerID }), nil
}

func (s *Store) ListBookingsBySeller(ctx context.Context, sellerID string) ([]models.Booking, error) {
	return s.listBookings(func(b models.Booking) bool { return b.SellerID == sellerID }), nil
}

func (s *Store) UpdateBooking(ctx context.Context, update storage.BookingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := update.Booking
	cur, ok := s.bookings[next.ID]
	if !ok || cur.Version != next.Version {
		return storage.ErrConflict
	}
	if err := s.checkPacks(update.Packs); err != nil {
		return err
	}
	s.applyPacks(update.Packs)
	cur.Status = next.Status
	cur.ValidatedBySeller = next.ValidatedBySeller
	cur.ValidatedByBuyer = next.ValidatedByBuyer
	cur.ValidatedAt = next.ValidatedAt
	cur.UpdatedAt = next.UpdatedAt
	cur.Version++
	s.bookings[cur.ID] = cur
	next.Version = cur.Version
	return nil
}

// Exchanges

func (s *Store) CreateExchange(ctx context.Context, exchange *models.Exchange, packs []storage.PackChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exchanges[exchange.ID]; ok {
		return storage.ErrAlreadyExists
	}
	if err := s.checkPacks(packs); err != nil {
		return err
	}
	s.applyPacks(packs)
	s.exchanges[exchange.ID] = *exchange
	return nil
}

func (s *Store) GetExchange(ctx context.Context, exchangeID string) (*models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exchanges[exchangeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (s *Store) listExchanges(match func(models.Exchange) bool) []models.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Exchange
	for _, e := range s.exchanges {
		if match(e) {
			out = append(out, e)
		}
	}
	sortNewest(out, func(e models.Exchange) time.Time { return e.CreatedAt })
	return out
}

func (s *Store) ListExchangesByPack(ctx context.Context, packID string) ([]models.Exchange, error) {
	return s.listExchanges(func(e models.Exchange) bool { return e.References(packID) }), nil
}

func (s *Store) ListExchangesByUser(ctx context.Context, userID string) ([]models.Exchange, error) {
	return s.listExchanges(func(e models.Exchange) bool { return e.Involves(userID) }), nil
}

func (s *Store) ListExpiredPendingExchanges(ctx context.Context, cutoff time.Time) ([]models.Exchange, error) {
	return s.listExchanges(func(e models.Exchange) bool {
		return e.Status == models.ExchangePending && e.ExpiresAt.Before(cutoff) && e.ExpiryNotifiedAt == nil
	}), nil
}

func (s *Store) UpdateExchange(ctx context.Context, update storage.ExchangeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := update.Exchange
	cur, ok := s.exchanges[next.ID]
	if !ok || cur.Version != next.Version {
		return storage.ErrConflict
	}
	if err := s.checkPacks(update.Packs); err != nil {
		return err
	}
	s.applyPacks(update.Packs)
	cur.Status = next.Status
	cur.SelectedTimeWindow = next.SelectedTimeWindow
	cur.ValidatedByRequester = next.ValidatedByRequester
	cur.ValidatedByOwner = next.ValidatedByOwner
	cur.ValidatedAt = next.ValidatedAt
	cur.UpdatedAt = next.UpdatedAt
	cur.Version++
	s.exchanges[cur.ID] = cur
	next.Version = cur.Version
	return nil
}

func (s *Store) MarkExchangeExpiryNotified(ctx context.Context, exchangeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exchanges[exchangeID]
	if !ok || e.ExpiryNotifiedAt != nil {
		return storage.ErrConflict
	}
	e.ExpiryNotifiedAt = &at
	s.exchanges[exchangeID] = e
	return nil
}

// Ratings

func (s *Store) CreateRating(ctx context.Context, rating *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ratings[rating.BookingID]; ok {
		return storage.ErrAlreadyExists
	}
	s.ratings[rating.BookingID] = *rating
	return nil
}

func (s *Store) GetRatingByBooking(ctx context.Context, bookingID string) (*models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[bookingID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *Store) UpdateRating(ctx context.Context, rating *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ratings[rating.BookingID]
	if !ok || cur.RaterID != rating.RaterID {
		return storage.ErrNotFound
	}
	cur.Score = rating.Score
	cur.Comment = rating.Comment
	cur.UpdatedAt = rating.UpdatedAt
	s.ratings[rating.BookingID] = cur
	return nil
}

func (s *Store) DeleteRating(ctx context.Context, bookingID, raterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ratings[bookingID]
	if !ok || cur.RaterID != raterID {
		return storage.ErrNotFound
	}
	delete(s.ratings, bookingID)
	return nil
}

func (s *Store) ListRatingsFor(ctx context.Context, userID string) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Rating
	for _, r := range s.ratings {
		if r.RatedTo == userID {
			out = append(out, r)
		}
	}
	sortNewest(out, func(r models.Rating) time.Time { return r.CreatedAt })
	return out, nil
}

// Notifications

func (s *Store) SaveNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sortNewest(out, func(n models.Notification) time.Time { return n.CreatedAt })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return storage.ErrNotFound
	}
	n.Read = true
	s.notifications[notificationID] = n
	return nil
}

func sortNewest[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).After(at(items[j]))
	})
}
