// Package handler содержит HTTP-обработчики API сервиса бронирований DukaMart.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookmarket-system/internal/middleware"
	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/mpesa"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
	"github.com/mmeshcher/bookmarket-system/internal/service"
	"github.com/mmeshcher/bookmarket-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, firstName, lastName, email, phone, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)

	CreateStore(ctx context.Context, store *model.Store) error
	GetStore(ctx context.Context, id uuid.UUID) (*model.Store, error)
	CreateCatalogService(ctx context.Context, svc *model.Service) error
	CreateOffer(ctx context.Context, o *model.Offer) error

	CreateBooking(ctx context.Context, userID, offerID uuid.UUID, startTime time.Time, paymentCode string) (*model.Booking, error)
	AvailableSlots(ctx context.Context, offerID uuid.UUID, date time.Time) ([]string, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error)
	GetBookingsByOffer(ctx context.Context, offerID uuid.UUID) ([]model.BookingDetails, error)
	GetBookingsByStore(ctx context.Context, storeID uuid.UUID) ([]model.BookingDetails, error)
	GetBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.BookingDetails, error)
	UpdateBooking(ctx context.Context, id uuid.UUID, status *model.BookingStatus, start, end *time.Time) (*model.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	Redeem(ctx context.Context, code string) (*model.Booking, error)

	InitiatePayment(ctx context.Context, bookingID uuid.UUID, amount int64, phoneNumber string) (*model.Payment, error)
	ApplyPaymentCallback(ctx context.Context, cb mpesa.Callback) error
	GetStoreAnalytics(ctx context.Context, storeID uuid.UUID, from, to time.Time) (*model.StoreAnalytics, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирований.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrSlotConflict):
		http.Error(w, "this time slot is already booked, please choose a different time", http.StatusBadRequest)
	case errors.Is(err, service.ErrStoreClosed):
		http.Error(w, "the store is closed on this day", http.StatusBadRequest)
	case errors.Is(err, validation.ErrInvalidPhone):
		http.Error(w, "invalid phone number", http.StatusBadRequest)
	case errors.Is(err, repository.ErrBookingReferenced):
		http.Error(w, "booking is referenced by a payment", http.StatusConflict)
	case errors.Is(err, repository.ErrCodeInUse):
		http.Error(w, "payment code already attached to a pending booking", http.StatusConflict)
	case errors.Is(err, mpesa.ErrAuth), errors.Is(err, mpesa.ErrRejected), errors.Is(err, mpesa.ErrUnavailable):
		// Детали ответа шлюза остаются в логах, наружу уходит общее сообщение.
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, "payment gateway error", http.StatusBadGateway)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type bookingResponse struct {
	ID                string  `json:"id"`
	OfferID           string  `json:"offerId"`
	UserID            string  `json:"userId"`
	PaymentUniqueCode *string `json:"paymentUniqueCode,omitempty"`
	Status            string  `json:"status"`
	StartTime         string  `json:"startTime"`
	EndTime           string  `json:"endTime"`
	QRCodeURL         string  `json:"qrCode,omitempty"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:                b.ID.String(),
		OfferID:           b.OfferID.String(),
		UserID:            b.UserID.String(),
		PaymentUniqueCode: b.PaymentCode,
		Status:            string(b.Status),
		StartTime:         b.StartTime.Format(time.RFC3339),
		EndTime:           b.EndTime.Format(time.RFC3339),
	}
	if len(b.QRCode) > 0 {
		resp.QRCodeURL = "/api/bookings/" + b.ID.String() + "/qrcode"
	}
	return resp
}

type bookingDetailsResponse struct {
	bookingResponse
	ServiceName string  `json:"serviceName"`
	StoreName   string  `json:"storeName"`
	Price       float64 `json:"price"`
}

func toBookingDetailsResponse(d *model.BookingDetails) bookingDetailsResponse {
	return bookingDetailsResponse{
		bookingResponse: toBookingResponse(&d.Booking),
		ServiceName:     d.ServiceName,
		StoreName:       d.StoreName,
		Price:           float64(d.Price) / 100,
	}
}

type createBookingRequest struct {
	OfferID           string `json:"offerId"`
	StartTime         string `json:"startTime"`
	PaymentUniqueCode string `json:"paymentUniqueCode"`
}

// CreateBooking создаёт бронирование слота для текущего пользователя.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		http.Error(w, "invalid offerId", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid startTime, expected RFC3339", http.StatusBadRequest)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), userID, offerID, startTime, req.PaymentUniqueCode)
	if err != nil {
		h.writeDomainError(w, err, "create booking error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]bookingResponse{"booking": toBookingResponse(booking)})
}

// GetAvailableSlots возвращает доступные слоты предложения на дату.
func (h *Handler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	offerStr := r.URL.Query().Get("offerId")
	if dateStr == "" || offerStr == "" {
		http.Error(w, "date and offerId are required", http.StatusBadRequest)
		return
	}

	offerID, err := uuid.Parse(offerStr)
	if err != nil {
		http.Error(w, "invalid offerId", http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), offerID, date)
	if err != nil {
		h.writeDomainError(w, err, "available slots error")
		return
	}

	if slots == nil {
		slots = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"availableSlots": slots})
}

type validateRequest struct {
	QRData string `json:"qrData"`
}

type qrPayload struct {
	PaymentUniqueCode string `json:"paymentUniqueCode"`
}

// ValidateBooking погашает бронирование по содержимому QR-кода.
func (h *Handler) ValidateBooking(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QRData == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var payload qrPayload
	if err := json.Unmarshal([]byte(req.QRData), &payload); err != nil || payload.PaymentUniqueCode == "" {
		http.Error(w, "invalid qr data", http.StatusBadRequest)
		return
	}

	h.redeem(w, r, payload.PaymentUniqueCode)
}

type fulfillRequest struct {
	PaymentUniqueCode string `json:"paymentUniqueCode"`
}

// FulfillBooking погашает бронирование по коду платежа.
func (h *Handler) FulfillBooking(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentUniqueCode == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.redeem(w, r, req.PaymentUniqueCode)
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request, code string) {
	booking, err := h.service.Redeem(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "booking not found or already fulfilled/cancelled", http.StatusNotFound)
			return
		}
		h.writeDomainError(w, err, "redeem booking error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bookingResponse{"booking": toBookingResponse(booking)})
}

func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// GetBooking возвращает бронирование с данными услуги и магазина.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	details, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "get booking error")
		return
	}

	h.writeJSON(w, http.StatusOK, toBookingDetailsResponse(details))
}

// GetBookingQR отдаёт PNG с QR-кодом бронирования.
func (h *Handler) GetBookingQR(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	details, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "get booking qr error")
		return
	}

	if len(details.Booking.QRCode) == 0 {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(details.Booking.QRCode)
}

func (h *Handler) listBookings(w http.ResponseWriter, list []model.BookingDetails) {
	resp := make([]bookingDetailsResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toBookingDetailsResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetBookingsByOffer возвращает бронирования предложения.
func (h *Handler) GetBookingsByOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := parseIDParam(r, "offerID")
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	list, err := h.service.GetBookingsByOffer(r.Context(), offerID)
	if err != nil {
		h.writeDomainError(w, err, "list bookings by offer error")
		return
	}
	h.listBookings(w, list)
}

// GetBookingsByStore возвращает бронирования магазина.
func (h *Handler) GetBookingsByStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := parseIDParam(r, "storeID")
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}

	list, err := h.service.GetBookingsByStore(r.Context(), storeID)
	if err != nil {
		h.writeDomainError(w, err, "list bookings by store error")
		return
	}
	h.listBookings(w, list)
}

// GetUserBookings возвращает бронирования текущего пользователя.
func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	list, err := h.service.GetBookingsByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "list user bookings error")
		return
	}
	h.listBookings(w, list)
}

type updateBookingRequest struct {
	Status    *string `json:"status"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
}

// UpdateBooking изменяет статус и/или интервал бронирования.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var status *model.BookingStatus
	if req.Status != nil {
		st := model.BookingStatus(*req.Status)
		switch st {
		case model.BookingStatusPending, model.BookingStatusCancelled, model.BookingStatusFulfilled:
			status = &st
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}

	start, err := parseOptionalTime(req.StartTime)
	if err != nil {
		http.Error(w, "invalid startTime", http.StatusBadRequest)
		return
	}
	end, err := parseOptionalTime(req.EndTime)
	if err != nil {
		http.Error(w, "invalid endTime", http.StatusBadRequest)
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), id, status, start, end)
	if err != nil {
		h.writeDomainError(w, err, "update booking error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bookingResponse{"booking": toBookingResponse(booking)})
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteBooking удаляет бронирование.
func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteBooking(r.Context(), id); err != nil {
		h.writeDomainError(w, err, "delete booking error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetStoreAnalytics возвращает агрегированные показатели бронирований магазина.
func (h *Handler) GetStoreAnalytics(w http.ResponseWriter, r *http.Request) {
	storeID, err := parseIDParam(r, "storeID")
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "invalid end date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	analytics, err := h.service.GetStoreAnalytics(r.Context(), storeID, from, to)
	if err != nil {
		h.writeDomainError(w, err, "store analytics error")
		return
	}

	h.writeJSON(w, http.StatusOK, analytics)
}

type createPaymentRequest struct {
	BookingID   string `json:"bookingId"`
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phoneNumber"`
}

// CreatePayment инициирует STK push по бронированию.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		http.Error(w, "invalid bookingId", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	payment, err := h.service.InitiatePayment(r.Context(), bookingID, req.Amount, req.PhoneNumber)
	if err != nil {
		h.writeDomainError(w, err, "initiate payment error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success":           true,
		"merchantRequestId": payment.MerchantRequestID,
		"checkoutRequestId": payment.CheckoutRequestID,
	})
}

// PaymentCallback принимает webhook шлюза с результатом платежа.
// Доставка at-least-once: бизнес-расхождения не считаются ошибкой и не
// должны провоцировать повторные доставки, поэтому ответ всегда 200,
// кроме синтаксически некорректного тела.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb mpesa.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil || cb.MerchantRequestID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyPaymentCallback(r.Context(), cb); err != nil {
		h.logger.Error("payment callback processing error",
			zap.Error(err),
			zap.String("merchantRequestID", cb.MerchantRequestID))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
