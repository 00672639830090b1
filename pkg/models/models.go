package models

import (
	"slices"
	"time"
)

// PackStatus defines the possible states of a pack.
type PackStatus string

const (
	PackAvailable PackStatus = "available"
	PackReserved  PackStatus = "reserved"
	PackSold      PackStatus = "sold"
	PackExpired   PackStatus = "expired"
	PackArchived  PackStatus = "archived"
)

// BookingStatus defines the possible states of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active reports whether the booking still holds its pack.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// ExchangeStatus defines the stored states of an exchange.
type ExchangeStatus string

const (
	ExchangePending   ExchangeStatus = "pending"
	ExchangeAccepted  ExchangeStatus = "accepted"
	ExchangeRejected  ExchangeStatus = "rejected"
	ExchangeCompleted ExchangeStatus = "completed"
	ExchangeCancelled ExchangeStatus = "cancelled"
)

// ExchangeState is the status as observed at a point in time. It adds
// ExchangePendingExpired, which is never stored.
type ExchangeState string

const ExchangePendingExpired ExchangeState = "pending_expired"

// Pack is a listing of surplus goods offered by its owner.
type Pack struct {
	ID            string     `dynamodbav:"id"`
	OwnerID       string     `dynamodbav:"owner_id"`
	Title         string     `dynamodbav:"title"`
	Description   string     `dynamodbav:"description,omitempty"`
	Category      string     `dynamodbav:"category,omitempty"`
	Price         int64      `dynamodbav:"price"`
	OriginalPrice int64      `dynamodbav:"original_price,omitempty"`
	Status        PackStatus `dynamodbav:"status"`
	TimeWindows   []string   `dynamodbav:"time_windows"`
	ExpiresAt     *time.Time `dynamodbav:"expires_at,omitempty"`
	ReservedBy    string     `dynamodbav:"reserved_by,omitempty"`
	Version       int64      `dynamodbav:"version"`
	CreatedAt     time.Time  `dynamodbav:"created_at"`
	UpdatedAt     time.Time  `dynamodbav:"updated_at"`
}

// EffectiveStatus is the stored status, or PackExpired once ExpiresAt has passed
// for a pack that is still listed.
func (p *Pack) EffectiveStatus(now time.Time) PackStatus {
	if p.Status == PackAvailable && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return PackExpired
	}
	return p.Status
}

// IsAvailable reports whether the pack can be booked or offered at now.
func (p *Pack) IsAvailable(now time.Time) bool {
	return p.EffectiveStatus(now) == PackAvailable
}

// HasTimeWindow reports whether w is one of the pack's pickup windows.
func (p *Pack) HasTimeWindow(w string) bool {
	return slices.Contains(p.TimeWindows, w)
}

// Booking is a buyer's reservation of a pack, closed by a pickup code.
type Booking struct {
	ID                string        `dynamodbav:"id"`
	PackID            string        `dynamodbav:"pack_id"`
	BuyerID           string        `dynamodbav:"buyer_id"`
	SellerID          string        `dynamodbav:"seller_id"`
	PickupCode        string        `dynamodbav:"pickup_code"`
	TimeWindow        string        `dynamodbav:"time_window"`
	Status            BookingStatus `dynamodbav:"status"`
	ValidatedBySeller bool          `dynamodbav:"validated_by_seller"`
	ValidatedByBuyer  bool          `dynamodbav:"validated_by_buyer"`
	ValidatedAt       *time.Time    `dynamodbav:"validated_at,omitempty"`
	Version           int64         `dynamodbav:"version"`
	CreatedAt         time.Time     `dynamodbav:"created_at"`
	UpdatedAt         time.Time     `dynamodbav:"updated_at"`
}

// Holder is the reservation reference written to the booked pack.
func (b *Booking) Holder() string {
	return "booking:" + b.ID
}

// Exchange is a barter of one pack for another, closed by a shared code.
type Exchange struct {
	ID                   string         `dynamodbav:"id"`
	OfferedPackID        string         `dynamodbav:"offered_pack_id"`
	RequestedPackID      string         `dynamodbav:"requested_pack_id"`
	RequesterID          string         `dynamodbav:"requester_id"`
	OwnerID              string         `dynamodbav:"owner_id"`
	Status               ExchangeStatus `dynamodbav:"status"`
	SelectedTimeWindow   string         `dynamodbav:"selected_time_window,omitempty"`
	Code                 string         `dynamodbav:"code"`
	ValidatedByRequester bool           `dynamodbav:"validated_by_requester"`
	ValidatedByOwner     bool           `dynamodbav:"validated_by_owner"`
	Message              string         `dynamodbav:"message,omitempty"`
	ExpiresAt            time.Time      `dynamodbav:"expires_at"`
	ValidatedAt          *time.Time     `dynamodbav:"validated_at,omitempty"`
	ExpiryNotifiedAt     *time.Time     `dynamodbav:"expiry_notified_at,omitempty"`
	Version              int64          `dynamodbav:"version"`
	CreatedAt            time.Time      `dynamodbav:"created_at"`
	UpdatedAt            time.Time      `dynamodbav:"updated_at"`
}

// Holder is the reservation reference written to both exchanged packs.
func (e *Exchange) Holder() string {
	return "exchange:" + e.ID
}

// State derives the observable state at now. A pending exchange past its
// expiry reports ExchangePendingExpired; the stored status is untouched.
func (e *Exchange) State(now time.Time) ExchangeState {
	if e.Status == ExchangePending && !now.Before(e.ExpiresAt) {
		return ExchangePendingExpired
	}
	return ExchangeState(e.Status)
}

// Active reports whether the exchange still blocks its packs at now.
// Expired proposals are inert and do not count.
func (e *Exchange) Active(now time.Time) bool {
	switch e.State(now) {
	case ExchangeState(ExchangePending), ExchangeState(ExchangeAccepted):
		return true
	}
	return false
}

// Involves reports whether userID is a party to the exchange.
func (e *Exchange) Involves(userID string) bool {
	return e.RequesterID == userID || e.OwnerID == userID
}

// References reports whether packID is one of the exchanged packs.
func (e *Exchange) References(packID string) bool {
	return e.OfferedPackID == packID || e.RequestedPackID == packID
}

// Rating is a buyer's score of the seller for a completed booking.
type Rating struct {
	ID        string    `dynamodbav:"id"`
	BookingID string    `dynamodbav:"booking_id"`
	RaterID   string    `dynamodbav:"rater_id"`
	RatedTo   string    `dynamodbav:"rated_to"`
	Score     int       `dynamodbav:"score"`
	Comment   string    `dynamodbav:"comment,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// RatingStats aggregates the ratings a user received.
type RatingStats struct {
	UserID    string
	Total     int
	Average   float64
	Histogram [5]int // index 0 holds one-star ratings
}

// NotificationType identifies what happened.
type NotificationType string

const (
	NotifyBookingCreated         NotificationType = "booking_created"
	NotifyBookingSellerValidated NotificationType = "booking_seller_validated"
	NotifyBookingBuyerValidated  NotificationType = "booking_buyer_validated"
	NotifyBookingCompleted       NotificationType = "booking_completed"
	NotifyBookingCancelled       NotificationType = "booking_cancelled"
	NotifyExchangeProposed       NotificationType = "exchange_proposed"
	NotifyExchangeAccepted       NotificationType = "exchange_accepted"
	NotifyExchangeRejected       NotificationType = "exchange_rejected"
	NotifyExchangeCancelled      NotificationType = "exchange_cancelled"
	NotifyExchangeValidated      NotificationType = "exchange_validated"
	NotifyExchangeCompleted      NotificationType = "exchange_completed"
	NotifyExchangeExpired        NotificationType = "exchange_expired"
	NotifyRatingReceived         NotificationType = "rating_received"
)

// Notification is a user-facing message about a transaction event.
// It travels as JSON through the notification queue.
type Notification struct {
	ID        string            `json:"id" dynamodbav:"id"`
	UserID    string            `json:"user_id" dynamodbav:"user_id"`
	Type      NotificationType  `json:"type" dynamodbav:"type"`
	Title     string            `json:"title" dynamodbav:"title"`
	Message   string            `json:"message" dynamodbav:"message"`
	Link      string            `json:"link,omitempty" dynamodbav:"link,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Read      bool              `json:"read" dynamodbav:"read"`
	CreatedAt time.Time         `json:"created_at" dynamodbav:"created_at"`
}
