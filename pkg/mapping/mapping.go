package mapping

import (
	"time"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/chris/neighborhood-packs/pkg/packs"
)

// ToApiPack converts a domain Pack to an API Pack. Status is the effective
// status at now, so an expired listing reads as expired.
func ToApiPack(p *models.Pack, now time.Time) *api.Pack {
	windows := p.TimeWindows
	if windows == nil {
		windows = []string{}
	}
	return &api.Pack{
		Id:            p.ID,
		OwnerId:       p.OwnerID,
		Title:         p.Title,
		Description:   p.Description,
		Category:      p.Category,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Status:        string(p.EffectiveStatus(now)),
		TimeWindows:   windows,
		ExpiresAt:     p.ExpiresAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func ToApiPacks(ps []models.Pack, now time.Time) []*api.Pack {
	out := make([]*api.Pack, len(ps))
	for i := range ps {
		out[i] = ToApiPack(&ps[i], now)
	}
	return out
}

// ToDomainNewPack converts an API NewPack for the given owner.
func ToDomainNewPack(in *api.NewPack, ownerID string) packs.CreatePackInput {
	return packs.CreatePackInput{
		OwnerID:       ownerID,
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		TimeWindows:   in.TimeWindows,
		ExpiresAt:     in.ExpiresAt,
	}
}

// ToApiBooking converts a domain Booking as seen by callerID. Only the buyer
// gets the pickup code; they show it to the seller at pickup.
func ToApiBooking(b *models.Booking, callerID string) *api.Booking {
	out := &api.Booking{
		Id:                b.ID,
		PackId:            b.PackID,
		BuyerId:           b.BuyerID,
		SellerId:          b.SellerID,
		TimeWindow:        b.TimeWindow,
		Status:            string(b.Status),
		ValidatedBySeller: b.ValidatedBySeller,
		ValidatedByBuyer:  b.ValidatedByBuyer,
		ValidatedAt:       b.ValidatedAt,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if callerID == b.BuyerID {
		code := b.PickupCode
		out.PickupCode = &code
	}
	return out
}

func ToApiBookings(bs []models.Booking, callerID string) []*api.Booking {
	out := make([]*api.Booking, len(bs))
	for i := range bs {
		out[i] = ToApiBooking(&bs[i], callerID)
	}
	return out
}

func ToDomainNewBooking(in *api.NewBooking, buyerID string) booking.CreateInput {
	return booking.CreateInput{
		PackID:     in.PackId,
		BuyerID:    buyerID,
		TimeWindow: in.TimeWindow,
	}
}

// ToApiExchange converts a domain Exchange as seen by callerID at now. The
// code is shared with both participants once the exchange is accepted.
func ToApiExchange(x *models.Exchange, callerID string, now time.Time) *api.Exchange {
	out := &api.Exchange{
		Id:                   x.ID,
		OfferedPackId:        x.OfferedPackID,
		RequestedPackId:      x.RequestedPackID,
		RequesterId:          x.RequesterID,
		OwnerId:              x.OwnerID,
		Status:               string(x.State(now)),
		SelectedTimeWindow:   x.SelectedTimeWindow,
		ValidatedByRequester: x.ValidatedByRequester,
		ValidatedByOwner:     x.ValidatedByOwner,
		Message:              x.Message,
		ExpiresAt:            x.ExpiresAt,
		ValidatedAt:          x.ValidatedAt,
		CreatedAt:            x.CreatedAt,
		UpdatedAt:            x.UpdatedAt,
	}
	if x.Involves(callerID) && x.Status != models.ExchangePending {
		code := x.Code
		out.Code = &code
	}
	return out
}

func ToApiExchanges(xs []models.Exchange, callerID string, now time.Time) []*api.Exchange {
	out := make([]*api.Exchange, len(xs))
	for i := range xs {
		out[i] = ToApiExchange(&xs[i], callerID, now)
	}
	return out
}

func ToDomainNewExchange(in *api.NewExchange, requesterID string) exchange.ProposeInput {
	return exchange.ProposeInput{
		RequesterID:     requesterID,
		RequestedPackID: in.RequestedPackId,
		OfferedPackID:   in.OfferedPackId,
		Message:         in.Message,
	}
}

func ToApiRating(r *models.Rating) *api.Rating {
	return &api.Rating{
		Id:        r.ID,
		BookingId: r.BookingID,
		RaterId:   r.RaterID,
		RatedTo:   r.RatedTo,
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func ToApiRatingStats(s *models.RatingStats) *api.RatingStats {
	return &api.RatingStats{
		UserId:    s.UserID,
		Total:     s.Total,
		Average:   s.Average,
		Histogram: s.Histogram[:],
	}
}

func ToApiNotifications(ns []models.Notification) []*api.Notification {
	out := make([]*api.Notification, len(ns))
	for i, n := range ns {
		out[i] = &api.Notification{
			Id:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Metadata:  n.Metadata,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}
	return out
}
