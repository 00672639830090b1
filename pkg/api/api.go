// Package api holds the request and response bodies of the HTTP API.
package api

import (
	"time"
)

// Pack defines model for Pack.
type Pack struct {
	Id            string     `json:"id"`
	OwnerId       string     `json:"owner_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Price         int64      `json:"price"`
	OriginalPrice int64      `json:"original_price,omitempty"`
	Status        string     `json:"status"`
	TimeWindows   []string   `json:"time_windows"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewPack defines model for NewPack.
type NewPack struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Price         int64      `json:"price"`
	OriginalPrice int64      `json:"original_price,omitempty"`
	TimeWindows   []string   `json:"time_windows"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// PackStatusUpdate defines model for PackStatusUpdate.
type PackStatusUpdate struct {
	Status string `json:"status"`
}

// PackBookingStatus defines model for PackBookingStatus.
type PackBookingStatus struct {
	HasActiveBooking bool `json:"has_active_booking"`
	IsBooked         bool `json:"is_booked"`
}

// Booking defines model for Booking. PickupCode is only set for the buyer.
type Booking struct {
	Id                string     `json:"id"`
	PackId            string     `json:"pack_id"`
	BuyerId           string     `json:"buyer_id"`
	SellerId          string     `json:"seller_id"`
	PickupCode        *string    `json:"pickup_code,omitempty"`
	TimeWindow        string     `json:"time_window,omitempty"`
	Status            string     `json:"status"`
	ValidatedBySeller bool       `json:"validated_by_seller"`
	ValidatedByBuyer  bool       `json:"validated_by_buyer"`
	ValidatedAt       *time.Time `json:"validated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewBooking defines model for NewBooking.
type NewBooking struct {
	PackId     string `json:"pack_id"`
	TimeWindow string `json:"time_window,omitempty"`
}

// CodeValidation defines model for CodeValidation.
type CodeValidation struct {
	Code string `json:"code"`
}

// Exchange defines model for Exchange. Code is only set for participants
// once the exchange is accepted.
type Exchange struct {
	Id                   string     `json:"id"`
	OfferedPackId        string     `json:"offered_pack_id"`
	RequestedPackId      string     `json:"requested_pack_id"`
	RequesterId          string     `json:"requester_id"`
	OwnerId              string     `json:"owner_id"`
	Status               string     `json:"status"`
	SelectedTimeWindow   string     `json:"selected_time_window,omitempty"`
	Code                 *string    `json:"code,omitempty"`
	ValidatedByRequester bool       `json:"validated_by_requester"`
	ValidatedByOwner     bool       `json:"validated_by_owner"`
	Message              string     `json:"message,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	ValidatedAt          *time.Time `json:"validated_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewExchange defines model for NewExchange.
type NewExchange struct {
	RequestedPackId string `json:"requested_pack_id"`
	OfferedPackId   string `json:"offered_pack_id"`
	Message         string `json:"message,omitempty"`
}

// ExchangeAcceptance defines model for ExchangeAcceptance.
type ExchangeAcceptance struct {
	TimeWindow string `json:"time_window"`
}

// ExchangeValidation defines model for ExchangeValidation.
type ExchangeValidation struct {
	Exchange  Exchange `json:"exchange"`
	Completed bool     `json:"completed"`
}

// Rating defines model for Rating.
type Rating struct {
	Id        string    `json:"id"`
	BookingId string    `json:"booking_id"`
	RaterId   string    `json:"rater_id"`
	RatedTo   string    `json:"rated_to"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRating defines model for NewRating.
type NewRating struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// RatingStats defines model for RatingStats.
type RatingStats struct {
	UserId    string  `json:"user_id"`
	Total     int     `json:"total"`
	Average   float64 `json:"average"`
	Histogram []int   `json:"histogram"`
}

// Notification defines model for Notification.
type Notification struct {
	Id        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Link      string            `json:"link,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// Error defines model for Error.
type Error struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}
