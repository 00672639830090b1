package storage

// ApiStore defines the operations needed by the engines behind the HTTP API.
type ApiStore interface {
	PackStore
	BookingStore
	ExchangeStore
	RatingStore
	NotificationReader
}
