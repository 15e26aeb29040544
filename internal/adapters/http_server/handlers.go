package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"roomhub/internal/adapters/observability"
	"roomhub/internal/app"
	"roomhub/internal/domain"
)

type Handlers struct {
	Bookings     *app.Bookings
	Payments     *app.Payments
	Availability *app.Availability
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers, jwtSecret []byte) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/rooms/{id}/availability", h.checkAvailability)
		r.Get("/rooms/{id}/bookings", h.roomBookings)
		r.Get("/rooms/{id}/occupied", h.occupiedTimes)

		r.Group(func(r chi.Router) {
			r.Use(Auth(jwtSecret))
			r.Post("/bookings", h.createBooking)
			r.Get("/bookings/me", h.myBookings)
			r.Get("/bookings/{id}", h.getBooking)
			r.Post("/bookings/{id}/cancel", h.cancelBooking)
			r.With(RequireRole(domain.RoleAdmin)).Post("/bookings/{id}/complete", h.completeBooking)
			r.Post("/bookings/{id}/charge", h.generateCharge)
			r.Get("/bookings/{id}/payments", h.paymentHistory)
			r.Post("/payments/{txid}/verify", h.verifyPayment)
			r.Get("/payments/{txid}", h.getPayment)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps a core error to a problem response. Only typed errors
// expose their reason; infrastructure and gateway failures stay generic.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		writeProblem(w, http.StatusBadRequest, "Invalid Request", domain.ReasonOf(err))
	case domain.KindNotFound:
		writeProblem(w, http.StatusNotFound, "Not Found", domain.ReasonOf(err))
	case domain.KindConflict:
		writeProblem(w, http.StatusConflict, "Conflict", domain.ReasonOf(err))
	case domain.KindUnauthorized:
		writeProblem(w, http.StatusForbidden, "Forbidden", domain.ReasonOf(err))
	case domain.KindState:
		writeProblem(w, http.StatusConflict, "Invalid State", domain.ReasonOf(err))
	case domain.KindGateway:
		log.Warn().Err(err).Str("route", routeOf(r)).Msg("payment gateway failure")
		writeProblem(w, http.StatusBadGateway, "Payment Gateway Error", "payment service is temporarily unavailable")
	default:
		log.Error().Err(err).Str("route", routeOf(r)).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := domain.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

// ---- availability & schedules ----

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339, q.Get("start_time"))
	end, err2 := time.Parse(time.RFC3339, q.Get("end_time"))
	if err1 != nil || err2 != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "start_time and end_time must be RFC 3339 timestamps")
		return
	}
	res, err := h.Availability.CheckSlot(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotCheck(res))
}

func (h *Handlers) roomBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.Bookings.ListForRoom(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toBookings(bs)})
}

func (h *Handlers) occupiedTimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.Bookings.OccupiedTimes(r.Context(), chi.URLParam(r, "id"), q.Get("date"), q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booked_time_slots": slots})
}

// ---- bookings ----

type createBookingReq struct {
	RoomID      string    `json:"room_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	PromotionID string    `json:"promotion_id"`
}

// createBooking books the slot and immediately asks for a payment QR. A
// gateway failure does not undo the booking; the client retries the charge.
func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	p := principal(r)
	b, err := h.Bookings.Create(r.Context(), app.CreateBookingInput{
		CustomerID:  p.ID,
		RoomID:      req.RoomID,
		Start:       req.StartTime,
		End:         req.EndTime,
		PromotionID: req.PromotionID,
	})
	observability.ObserveBooking("create", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"booking": toBookingDetail(b)}
	charge, err := h.Payments.GenerateCharge(r.Context(), b.ID, app.Payer{FirstName: p.FirstName, LastName: p.LastName, Email: p.Email})
	if err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("charge after booking failed")
		resp["payment"] = nil
		resp["payment_error"] = "payment could not be initiated, retry the charge"
	} else {
		resp["payment"] = toCharge(charge)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) myBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}
	bs, err := h.Bookings.ListForUser(r.Context(), principal(r).ID, q.Get("status"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toBookings(bs)})
}

// ownedBooking loads a booking the caller may see.
func (h *Handlers) ownedBooking(w http.ResponseWriter, r *http.Request, id string) (domain.Booking, bool) {
	b, err := h.Bookings.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return domain.Booking{}, false
	}
	if p := principal(r); !p.IsAdmin() && b.CustomerID != p.ID {
		writeProblem(w, http.StatusForbidden, "Forbidden", "Unauthorized")
		return domain.Booking{}, false
	}
	return b, true
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "id"), principal(r).Actor)
	observability.ObserveBooking("cancel", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) completeBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Complete(r.Context(), chi.URLParam(r, "id"))
	observability.ObserveBooking("complete", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

// ---- payments ----

func (h *Handlers) generateCharge(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	p := principal(r)
	payer := app.Payer{}
	if b.CustomerID == p.ID {
		payer = app.Payer{FirstName: p.FirstName, LastName: p.LastName, Email: p.Email}
	}
	charge, err := h.Payments.GenerateCharge(r.Context(), b.ID, payer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCharge(charge))
}

func (h *Handlers) paymentHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ps, err := h.Payments.History(r.Context(), b.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": toPayments(ps)})
}

func (h *Handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txid")
	v, err := h.Payments.GetByTransaction(r.Context(), txID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p := principal(r); !p.IsAdmin() && v.Booking.CustomerID != p.ID {
		writeProblem(w, http.StatusForbidden, "Forbidden", "Unauthorized")
		return
	}
	s, err := h.Payments.VerifyAndSettle(r.Context(), txID)
	if err != nil {
		observability.ObserveSettlement("error", "api")
		writeError(w, r, err)
		return
	}
	observability.ObserveSettlement(s.Outcome(), "api")
	writeJSON(w, http.StatusOK, toSettlement(s))
}

func (h *Handlers) getPayment(w http.ResponseWriter, r *http.Request) {
	v, err := h.Payments.GetByTransaction(r.Context(), chi.URLParam(r, "txid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p := principal(r); !p.IsAdmin() && v.Booking.CustomerID != p.ID {
		writeProblem(w, http.StatusForbidden, "Forbidden", "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": toPayment(v.Payment), "booking": toBooking(v.Booking)})
}
