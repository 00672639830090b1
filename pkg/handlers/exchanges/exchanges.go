package exchanges

import (
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/handlers"
	"github.com/chris/neighborhood-packs/pkg/mapping"
	"github.com/chris/neighborhood-packs/pkg/middleware"
	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/go-chi/chi/v5"
)

// ExchangesHandler holds the dependencies for exchange-related handlers.
type ExchangesHandler struct {
	Exchanges exchange.Service
	Clock     clock.Clock
}

// NewExchangesHandler creates a new ExchangesHandler.
func NewExchangesHandler(exchanges exchange.Service, c clock.Clock) *ExchangesHandler {
	return &ExchangesHandler{Exchanges: exchanges, Clock: c}
}

// Mount registers the exchange routes.
func (h *ExchangesHandler) Mount(r chi.Router) {
	r.Post("/exchanges", h.ProposeExchange)
	r.Get("/exchanges", h.ListExchanges)
	r.Get("/exchanges/{exchangeId}", h.GetExchangeById)
	r.Post("/exchanges/{exchangeId}/accept", h.AcceptExchange)
	r.Post("/exchanges/{exchangeId}/reject", h.RejectExchange)
	r.Post("/exchanges/{exchangeId}/cancel", h.CancelExchange)
	r.Post("/exchanges/{exchangeId}/validate", h.ValidateExchange)
}

func (h *ExchangesHandler) write(w http.ResponseWriter, r *http.Request, status int, x *models.Exchange) {
	handlers.WriteJSON(w, status, mapping.ToApiExchange(x, middleware.UserID(r.Context()), h.Clock.Now()))
}

func (h *ExchangesHandler) ProposeExchange(w http.ResponseWriter, r *http.Request) {
	var newExchange api.NewExchange
	if !handlers.DecodeJSON(w, r, &newExchange) {
		return
	}
	x, err := h.Exchanges.ProposeExchange(r.Context(), mapping.ToDomainNewExchange(&newExchange, middleware.UserID(r.Context())))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, x)
}

func (h *ExchangesHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserID(r.Context())
	list, err := h.Exchanges.ListExchanges(r.Context(), callerID)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, mapping.ToApiExchanges(list, callerID, h.Clock.Now()))
}

func (h *ExchangesHandler) GetExchangeById(w http.ResponseWriter, r *http.Request) {
	exchangeID, ok := handlers.PathID(w, r, "exchangeId")
	if !ok {
		return
	}
	x, err := h.Exchanges.GetExchange(r.Context(), exchangeID, middleware.UserID(r.Context()))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, x)
}

func (h *ExchangesHandler) AcceptExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, ok := handlers.PathID(w, r, "exchangeId")
	if !ok {
		return
	}
	var body api.ExchangeAcceptance
	if !handlers.DecodeJSON(w, r, &body) {
		return
	}
	x, err := h.Exchanges.AcceptExchange(r.Context(), exchangeID, middleware.UserID(r.Context()), body.TimeWindow)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, x)
}

func (h *ExchangesHandler) RejectExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, ok := handlers.PathID(w, r, "exchangeId")
	if !ok {
		return
	}
	x, err := h.Exchanges.RejectExchange(r.Context(), exchangeID, middleware.UserID(r.Context()))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, x)
}

func (h *ExchangesHandler) CancelExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, ok := handlers.PathID(w, r, "exchangeId")
	if !ok {
		return
	}
	x, err := h.Exchanges.CancelExchange(r.Context(), exchangeID, middleware.UserID(r.Context()))
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, x)
}

func (h *ExchangesHandler) ValidateExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, ok := handlers.PathID(w, r, "exchangeId")
	if !ok {
		return
	}
	var body api.CodeValidation
	if !handlers.DecodeJSON(w, r, &body) {
		return
	}

	callerID := middleware.UserID(r.Context())
	x, completed, err := h.Exchanges.ValidateByUser(r.Context(), exchangeID, callerID, body.Code)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, api.ExchangeValidation{
		Exchange:  *mapping.ToApiExchange(x, callerID, h.Clock.Now()),
		Completed: completed,
	})
}
