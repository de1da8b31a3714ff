// Package model содержит доменные сущности сервиса бронирований DukaMart.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Store описывает магазин продавца и его график работы.
// Время открытия и закрытия хранится в минутах от полуночи локального дня.
type Store struct {
	ID            uuid.UUID
	Name          string
	Location      string
	OpeningMinute int
	ClosingMinute int
	WorkingDays   []string
	Status        string
	CreatedAt     time.Time
}

// Service описывает услугу магазина. Price хранится в центах.
type Service struct {
	ID              uuid.UUID
	StoreID         uuid.UUID
	Name            string
	Price           int64
	DurationMinutes int
	Category        string
	CreatedAt       time.Time
}

// OfferStatus описывает статус жизненного цикла предложения.
type OfferStatus string

const (
	OfferStatusActive  OfferStatus = "active"
	OfferStatusExpired OfferStatus = "expired"
	OfferStatusPaused  OfferStatus = "paused"
)

// Offer описывает скидочное предложение на услугу.
type Offer struct {
	ID             uuid.UUID
	ServiceID      uuid.UUID
	Discount       float64
	ExpirationDate time.Time
	Status         OfferStatus
	CreatedAt      time.Time
}

// BookingStatus описывает статус бронирования.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusFulfilled BookingStatus = "fulfilled"
)

// Booking описывает бронирование временного слота по предложению.
// Интервал [StartTime, EndTime) полуоткрытый: соседние бронирования
// могут соприкасаться концами.
type Booking struct {
	ID          uuid.UUID
	OfferID     uuid.UUID
	UserID      uuid.UUID
	PaymentID   *uuid.UUID
	PaymentCode *string
	Status      BookingStatus
	StartTime   time.Time
	EndTime     time.Time
	QRCode      []byte
	CreatedAt   time.Time
}

// PaymentStatus описывает статус платежа. Статусы successful и failed терминальны.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment описывает платёж, инициированный через шлюз M-Pesa.
// Amount хранится в центах; UniqueCode — короткий код, связывающий
// платёж с бронированием.
type Payment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	OfferID           uuid.UUID
	BookingID         uuid.UUID
	PhoneNumber       string
	Amount            int64
	MerchantRequestID string
	CheckoutRequestID string
	UniqueCode        string
	Status            PaymentStatus
	ResultDescription string
	PaymentDate       time.Time
}

// OfferDetails — именованная проекция предложения вместе с услугой и магазином.
type OfferDetails struct {
	Offer   Offer
	Service Service
	Store   Store
}

// BookingDetails — именованная проекция бронирования с данными предложения,
// услуги и магазина.
type BookingDetails struct {
	Booking     Booking
	ServiceName string
	StoreName   string
	Price       int64
}

// StoreAnalytics содержит агрегированные показатели бронирований магазина.
type StoreAnalytics struct {
	TotalBookings         int     `json:"totalBookings"`
	CompletedBookings     int     `json:"completedBookings"`
	CancelledBookings     int     `json:"cancelledBookings"`
	PendingBookings       int     `json:"pendingBookings"`
	TotalRevenue          float64 `json:"totalRevenue"`
	AverageBookingsPerDay float64 `json:"averageBookingsPerDay"`
}
