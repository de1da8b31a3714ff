package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
	"github.com/mmeshcher/bookmarket-system/internal/service"
)

type registerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// Register регистрирует нового пользователя и устанавливает cookie аутентификации.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		http.Error(w, "firstName, email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.FirstName, req.LastName, req.Email, req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}
		h.writeDomainError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": user.ID.String(), "email": user.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login аутентифицирует пользователя и устанавливает cookie аутентификации.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.writeDomainError(w, err, "login error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": user.ID.String(), "email": user.Email})
}

type createStoreRequest struct {
	Name          string   `json:"name"`
	Location      string   `json:"location"`
	OpeningMinute int      `json:"openingMinute"`
	ClosingMinute int      `json:"closingMinute"`
	WorkingDays   []string `json:"workingDays"`
}

type storeResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Location      string   `json:"location"`
	OpeningMinute int      `json:"openingMinute"`
	ClosingMinute int      `json:"closingMinute"`
	WorkingDays   []string `json:"workingDays"`
	Status        string   `json:"status"`
}

func toStoreResponse(s *model.Store) storeResponse {
	return storeResponse{
		ID:            s.ID.String(),
		Name:          s.Name,
		Location:      s.Location,
		OpeningMinute: s.OpeningMinute,
		ClosingMinute: s.ClosingMinute,
		WorkingDays:   s.WorkingDays,
		Status:        s.Status,
	}
}

// CreateStore создаёт магазин.
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.ClosingMinute <= req.OpeningMinute {
		http.Error(w, "name is required and closingMinute must be after openingMinute", http.StatusBadRequest)
		return
	}

	store := &model.Store{
		Name:          req.Name,
		Location:      req.Location,
		OpeningMinute: req.OpeningMinute,
		ClosingMinute: req.ClosingMinute,
		WorkingDays:   req.WorkingDays,
	}
	if err := h.service.CreateStore(r.Context(), store); err != nil {
		h.writeDomainError(w, err, "create store error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toStoreResponse(store))
}

// GetStoreInfo возвращает магазин по идентификатору.
func (h *Handler) GetStoreInfo(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}

	store, err := h.service.GetStore(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "get store error")
		return
	}

	h.writeJSON(w, http.StatusOK, toStoreResponse(store))
}

type createServiceRequest struct {
	StoreID         string  `json:"storeId"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"durationMinutes"`
}

// CreateService создаёт услугу магазина.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		http.Error(w, "invalid storeId", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Price < 0 || req.DurationMinutes <= 0 {
		http.Error(w, "name, positive durationMinutes and non-negative price are required", http.StatusBadRequest)
		return
	}

	svc := &model.Service{
		StoreID:         storeID,
		Name:            req.Name,
		Category:        req.Category,
		Price:           int64(req.Price * 100),
		DurationMinutes: req.DurationMinutes,
	}
	if err := h.service.CreateCatalogService(r.Context(), svc); err != nil {
		h.writeDomainError(w, err, "create service error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":              svc.ID.String(),
		"storeId":         svc.StoreID.String(),
		"name":            svc.Name,
		"category":        svc.Category,
		"price":           float64(svc.Price) / 100,
		"durationMinutes": svc.DurationMinutes,
	})
}

type createOfferRequest struct {
	ServiceID      string  `json:"serviceId"`
	Discount       float64 `json:"discount"`
	ExpirationDate string  `json:"expirationDate"`
}

// CreateOffer создаёт предложение услуги со скидкой.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		http.Error(w, "invalid serviceId", http.StatusBadRequest)
		return
	}
	if req.Discount < 0 || req.Discount > 100 {
		http.Error(w, "discount must be between 0 and 100", http.StatusBadRequest)
		return
	}
	expiration, err := time.Parse("2006-01-02", req.ExpirationDate)
	if err != nil {
		http.Error(w, "invalid expirationDate, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	offer := &model.Offer{
		ServiceID:      serviceID,
		Discount:       req.Discount,
		ExpirationDate: expiration,
		Status:         model.OfferStatusActive,
	}
	if err := h.service.CreateOffer(r.Context(), offer); err != nil {
		h.writeDomainError(w, err, "create offer error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":             offer.ID.String(),
		"serviceId":      offer.ServiceID.String(),
		"discount":       offer.Discount,
		"expirationDate": offer.ExpirationDate.Format("2006-01-02"),
		"status":         string(offer.Status),
	})
}
