// Package service реализует бизнес-логику сервиса бронирований DukaMart.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/mpesa"
	"github.com/mmeshcher/bookmarket-system/internal/notify"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
	"github.com/mmeshcher/bookmarket-system/internal/schedule"
	"github.com/mmeshcher/bookmarket-system/internal/validation"
)

// ErrStoreClosed возвращается при запросе слотов на нерабочий день магазина.
var (
	ErrStoreClosed = errors.New("store is closed on this day")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)

	CreateStore(ctx context.Context, s *model.Store) error
	GetStore(ctx context.Context, id uuid.UUID) (*model.Store, error)
	CreateService(ctx context.Context, s *model.Service) error
	CreateOffer(ctx context.Context, o *model.Offer) error
	GetOfferDetails(ctx context.Context, offerID uuid.UUID) (*model.OfferDetails, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	GetBookingDetails(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error)
	ListBookingsByOffer(ctx context.Context, offerID uuid.UUID) ([]model.BookingDetails, error)
	ListBookingsByStore(ctx context.Context, storeID uuid.UUID) ([]model.BookingDetails, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.BookingDetails, error)
	BookedIntervals(ctx context.Context, offerID uuid.UUID, from, to time.Time) ([]schedule.Interval, error)
	UpdateBooking(ctx context.Context, id uuid.UUID, status *model.BookingStatus, start, end *time.Time) (*model.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	RedeemBooking(ctx context.Context, code string) (*model.Booking, error)
	ExpireStaleHolds(ctx context.Context, olderThan time.Time) (int64, error)

	GetPaymentByCode(ctx context.Context, code string) (*model.Payment, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	ApplyPaymentResult(ctx context.Context, merchantRequestID string, success bool, description string) (*repository.PaymentResultOutcome, error)
	GetStoreBookingStats(ctx context.Context, storeID uuid.UUID, from, to time.Time) (*repository.StoreBookingStats, error)
}

// Gateway описывает контракт платёжного шлюза.
type Gateway interface {
	GetAccessToken(ctx context.Context) (string, error)
	PushPayment(ctx context.Context, token string, amount int64, phoneNumber, accountReference string) (*mpesa.PushResult, error)
}

// Service содержит бизнес-логику сервиса бронирований.
type Service struct {
	repo    Repository
	gateway Gateway
	sender  notify.Sender
	logger  *zap.Logger
	holdTTL time.Duration
}

// NewService создаёт сервис с указанным репозиторием, платёжным шлюзом и
// отправителем уведомлений. gateway и sender могут быть nil: тогда платежи
// и письма недоступны, остальная логика работает. holdTTL > 0 включает
// фоновую отмену просроченных неоплаченных бронирований.
func NewService(repo Repository, gateway Gateway, sender notify.Sender, logger *zap.Logger, holdTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		sender:  sender,
		logger:  logger,
		holdTTL: holdTTL,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, firstName, lastName, email, phone, password string) (*model.User, error) {
	u := &model.User{
		ID:           uuid.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hashPassword(email, password),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// CreateStore создаёт магазин.
func (s *Service) CreateStore(ctx context.Context, store *model.Store) error {
	store.ID = uuid.New()
	if store.Status == "" {
		store.Status = "open"
	}
	return s.repo.CreateStore(ctx, store)
}

// GetStore возвращает магазин по идентификатору.
func (s *Service) GetStore(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	return s.repo.GetStore(ctx, id)
}

// CreateCatalogService создаёт услугу магазина.
func (s *Service) CreateCatalogService(ctx context.Context, svc *model.Service) error {
	svc.ID = uuid.New()
	return s.repo.CreateService(ctx, svc)
}

// CreateOffer создаёт предложение на услугу.
func (s *Service) CreateOffer(ctx context.Context, o *model.Offer) error {
	o.ID = uuid.New()
	if o.Status == "" {
		o.Status = model.OfferStatusActive
	}
	return s.repo.CreateOffer(ctx, o)
}

type qrPayload struct {
	PaymentUniqueCode string `json:"paymentUniqueCode"`
}

// CreateBooking создаёт бронирование слота по предложению.
// Порядок проверок: код платежа (если указан), предложение с услугой,
// пользователь; затем вставка с проверкой пересечений на стороне БД.
// Письмо-подтверждение отправляется асинхронно: его сбой не влияет на
// результат бронирования.
func (s *Service) CreateBooking(ctx context.Context, userID, offerID uuid.UUID, startTime time.Time, paymentCode string) (*model.Booking, error) {
	var paymentID *uuid.UUID
	var codeRef *string
	if paymentCode != "" {
		payment, err := s.repo.GetPaymentByCode(ctx, paymentCode)
		if err != nil {
			return nil, fmt.Errorf("resolve payment code: %w", err)
		}
		paymentID = &payment.ID
		codeRef = &payment.UniqueCode
	}

	details, err := s.repo.GetOfferDetails(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("resolve offer: %w", err)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	endTime := startTime.Add(time.Duration(details.Service.DurationMinutes) * time.Minute)

	booking := &model.Booking{
		ID:          uuid.New(),
		OfferID:     offerID,
		UserID:      userID,
		PaymentID:   paymentID,
		PaymentCode: codeRef,
		Status:      model.BookingStatusPending,
		StartTime:   startTime,
		EndTime:     endTime,
	}

	qrCode := "N/A"
	if codeRef != nil {
		qrCode = *codeRef
	}
	payload, err := json.Marshal(qrPayload{PaymentUniqueCode: qrCode})
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	booking.QRCode = png

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.sendConfirmation(user, details.Service.Name, booking)

	return booking, nil
}

func (s *Service) sendConfirmation(user *model.User, serviceName string, booking *model.Booking) {
	if s.sender == nil {
		return
	}

	code := ""
	if booking.PaymentCode != nil {
		code = *booking.PaymentCode
	}
	body := notify.BookingConfirmation(user.FirstName, serviceName, booking.StartTime, booking.EndTime, code)

	go func() {
		if err := s.sender.Send(user.Email, "Booking Confirmation", body); err != nil {
			s.logger.Warn("booking confirmation email failed",
				zap.Error(err),
				zap.String("bookingID", booking.ID.String()),
				zap.String("email", user.Email))
		}
	}()
}

// AvailableSlots возвращает доступные слоты предложения на указанную дату
// в формате "HH:MM". Дата интерпретируется в UTC.
func (s *Service) AvailableSlots(ctx context.Context, offerID uuid.UUID, date time.Time) ([]string, error) {
	details, err := s.repo.GetOfferDetails(ctx, offerID)
	if err != nil {
		return nil, err
	}

	weekday := date.Weekday().String()
	if !containsDay(details.Store.WorkingDays, weekday) {
		return nil, ErrStoreClosed
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	busy, err := s.repo.BookedIntervals(ctx, offerID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	slots := schedule.Generate(day, details.Store.OpeningMinute, details.Store.ClosingMinute)
	free := schedule.Free(slots, busy)

	res := make([]string, 0, len(free))
	for _, t := range free {
		res = append(res, t.Format("15:04"))
	}
	return res, nil
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// GetBooking возвращает бронирование с данными услуги и магазина.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error) {
	return s.repo.GetBookingDetails(ctx, id)
}

// GetBookingsByOffer возвращает бронирования предложения.
func (s *Service) GetBookingsByOffer(ctx context.Context, offerID uuid.UUID) ([]model.BookingDetails, error) {
	return s.repo.ListBookingsByOffer(ctx, offerID)
}

// GetBookingsByStore возвращает бронирования магазина.
func (s *Service) GetBookingsByStore(ctx context.Context, storeID uuid.UUID) ([]model.BookingDetails, error) {
	return s.repo.ListBookingsByStore(ctx, storeID)
}

// GetBookingsByUser возвращает бронирования пользователя.
func (s *Service) GetBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.BookingDetails, error) {
	return s.repo.ListBookingsByUser(ctx, userID)
}

// UpdateBooking изменяет статус и/или интервал бронирования.
func (s *Service) UpdateBooking(ctx context.Context, id uuid.UUID, status *model.BookingStatus, start, end *time.Time) (*model.Booking, error) {
	return s.repo.UpdateBooking(ctx, id, status, start, end)
}

// CancelBooking переводит бронирование в статус cancelled.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	status := model.BookingStatusCancelled
	return s.repo.UpdateBooking(ctx, id, &status, nil, nil)
}

// DeleteBooking удаляет бронирование, если на него не ссылается платёж.
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteBooking(ctx, id)
}

// Redeem находит ожидающее бронирование по коду платежа и переводит его в
// fulfilled. Повторное погашение того же кода возвращает ErrNotFound:
// погашенная и никогда не существовавшая брони для вызывающего неотличимы.
func (s *Service) Redeem(ctx context.Context, code string) (*model.Booking, error) {
	return s.repo.RedeemBooking(ctx, code)
}

// InitiatePayment инициирует STK push по бронированию и сохраняет платёж
// в статусе pending. Терминальный статус выставит callback шлюза.
// amount — сумма в целых шиллингах.
func (s *Service) InitiatePayment(ctx context.Context, bookingID uuid.UUID, amount int64, phoneNumber string) (*model.Payment, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: gateway not configured", mpesa.ErrUnavailable)
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	normalized, err := validation.NormalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}

	token, err := s.gateway.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	accountRef := "Booking-" + booking.ID.String()
	res, err := s.gateway.PushPayment(ctx, token, amount, normalized, accountRef)
	if err != nil {
		return nil, err
	}

	code, err := generateUniqueCode()
	if err != nil {
		return nil, fmt.Errorf("generate unique code: %w", err)
	}

	payment := &model.Payment{
		ID:                uuid.New(),
		UserID:            booking.UserID,
		OfferID:           booking.OfferID,
		BookingID:         booking.ID,
		PhoneNumber:       normalized,
		Amount:            amount * 100,
		MerchantRequestID: res.MerchantRequestID,
		CheckoutRequestID: res.CheckoutRequestID,
		UniqueCode:        code,
		Status:            model.PaymentStatusPending,
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateUniqueCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// ApplyPaymentCallback применяет результат платежа, доставленный шлюзом.
// Доставка at-least-once: повторный callback по уже терминальному платежу —
// no-op. Расхождение статусов бронирования (уже fulfilled или cancelled)
// логируется, но ошибкой не считается.
func (s *Service) ApplyPaymentCallback(ctx context.Context, cb mpesa.Callback) error {
	success := cb.ResultCode == 0

	outcome, err := s.repo.ApplyPaymentResult(ctx, cb.MerchantRequestID, success, cb.ResultDesc)
	if err != nil {
		return err
	}

	switch {
	case outcome.AlreadyFinal:
		s.logger.Info("duplicate payment callback ignored",
			zap.String("merchantRequestID", cb.MerchantRequestID))
	case success && !outcome.BookingAdvanced:
		s.logger.Warn("payment succeeded but booking was not pending",
			zap.String("merchantRequestID", cb.MerchantRequestID),
			zap.String("bookingID", outcome.BookingID.String()))
	default:
		s.logger.Info("payment callback applied",
			zap.String("merchantRequestID", cb.MerchantRequestID),
			zap.Bool("success", success))
	}

	return nil
}

// GetStoreAnalytics возвращает агрегированные показатели бронирований
// магазина за период. При нулевой длине периода среднее за день равно
// общему числу бронирований.
func (s *Service) GetStoreAnalytics(ctx context.Context, storeID uuid.UUID, from, to time.Time) (*model.StoreAnalytics, error) {
	stats, err := s.repo.GetStoreBookingStats(ctx, storeID, from, to)
	if err != nil {
		return nil, err
	}

	days := int(to.Sub(from).Hours() / 24)
	avg := float64(stats.Total)
	if days > 0 {
		avg = float64(stats.Total) / float64(days)
	}

	return &model.StoreAnalytics{
		TotalBookings:         stats.Total,
		CompletedBookings:     stats.Fulfilled,
		CancelledBookings:     stats.Cancelled,
		PendingBookings:       stats.Pending,
		TotalRevenue:          float64(stats.RevenueCents) / 100,
		AverageBookingsPerDay: avg,
	}, nil
}

// StartHoldExpiry запускает фоновую отмену просроченных неоплаченных
// бронирований. При нулевом TTL процесс не запускается: по умолчанию
// ожидающие брони не истекают.
func (s *Service) StartHoldExpiry(ctx context.Context) {
	if s.holdTTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.repo.ExpireStaleHolds(ctx, time.Now().Add(-s.holdTTL))
				if err != nil {
					s.logger.Warn("expire stale holds failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("expired stale booking holds", zap.Int64("count", n))
				}
			}
		}
	}()
}
