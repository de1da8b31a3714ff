// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/schedule"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound возвращается, если запрошенная сущность отсутствует.
var (
	ErrNotFound = errors.New("entity not found")
	// ErrSlotConflict возвращается при попытке забронировать интервал,
	// пересекающийся с существующим неотменённым бронированием.
	ErrSlotConflict = errors.New("time slot already booked")
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
	ErrUserExists = errors.New("user already exists")
	// ErrBookingReferenced возвращается при попытке удалить бронирование,
	// на которое ссылается платёж.
	ErrBookingReferenced = errors.New("booking is referenced by a payment")
	// ErrCodeInUse возвращается при попытке прикрепить код платежа,
	// уже прикреплённый к другому ожидающему бронированию.
	ErrCodeInUse = errors.New("payment code already attached to a pending booking")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только конфликты сериализации и дедлоки; остальные
		// pg-ошибки отдаём вызывающему коду сразу.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, email, phone_number, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PhoneNumber, u.PasswordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, phone_number, password_hash, created_at
		 FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, phone_number, password_hash, created_at
		 FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateStore создаёт магазин.
func (r *PostgresRepository) CreateStore(ctx context.Context, s *model.Store) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO stores (id, name, location, opening_minute, closing_minute, working_days, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Location, s.OpeningMinute, s.ClosingMinute, s.WorkingDays, s.Status,
	)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

// GetStore возвращает магазин по идентификатору.
func (r *PostgresRepository) GetStore(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	var s model.Store
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, location, opening_minute, closing_minute, working_days, status, created_at
		 FROM stores WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.Location, &s.OpeningMinute, &s.ClosingMinute, &s.WorkingDays, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

// CreateService создаёт услугу магазина.
func (r *PostgresRepository) CreateService(ctx context.Context, s *model.Service) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO services (id, store_id, name, price, duration_minutes, category)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.StoreID, s.Name, s.Price, s.DurationMinutes, s.Category,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: store %s", ErrNotFound, s.StoreID)
		}
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// CreateOffer создаёт предложение на услугу.
func (r *PostgresRepository) CreateOffer(ctx context.Context, o *model.Offer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO offers (id, service_id, discount, expiration_date, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.ServiceID, o.Discount, o.ExpirationDate, o.Status,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: service %s", ErrNotFound, o.ServiceID)
		}
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// GetOfferDetails возвращает предложение вместе с услугой и магазином одной проекцией.
func (r *PostgresRepository) GetOfferDetails(ctx context.Context, offerID uuid.UUID) (*model.OfferDetails, error) {
	var d model.OfferDetails
	err := r.pool.QueryRow(ctx,
		`SELECT o.id, o.service_id, o.discount, o.expiration_date, o.status, o.created_at,
		        s.id, s.store_id, s.name, s.price, s.duration_minutes, s.category, s.created_at,
		        st.id, st.name, st.location, st.opening_minute, st.closing_minute, st.working_days, st.status, st.created_at
		 FROM offers o
		 JOIN services s ON s.id = o.service_id
		 JOIN stores st ON st.id = s.store_id
		 WHERE o.id = $1`,
		offerID,
	).Scan(
		&d.Offer.ID, &d.Offer.ServiceID, &d.Offer.Discount, &d.Offer.ExpirationDate, &d.Offer.Status, &d.Offer.CreatedAt,
		&d.Service.ID, &d.Service.StoreID, &d.Service.Name, &d.Service.Price, &d.Service.DurationMinutes, &d.Service.Category, &d.Service.CreatedAt,
		&d.Store.ID, &d.Store.Name, &d.Store.Location, &d.Store.OpeningMinute, &d.Store.ClosingMinute, &d.Store.WorkingDays, &d.Store.Status, &d.Store.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offer details: %w", err)
	}
	return &d, nil
}

// CreateBooking вставляет бронирование. Инвариант отсутствия пересечений
// обеспечивается exclusion-ограничением БД: конкурирующая вставка
// пересекающегося интервала завершается ошибкой, которая транслируется
// в ErrSlotConflict.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *model.Booking) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO bookings (id, offer_id, user_id, payment_id, payment_code, status, start_time, end_time, qr_png)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			b.ID, b.OfferID, b.UserID, b.PaymentID, b.PaymentCode, b.Status, b.StartTime, b.EndTime, b.QRCode,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case pgerrcode.ExclusionViolation:
					return ErrSlotConflict
				case pgerrcode.UniqueViolation:
					return ErrCodeInUse
				}
			}
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
}

const bookingColumns = `id, offer_id, user_id, payment_id, payment_code, status, start_time, end_time, qr_png, created_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.OfferID, &b.UserID, &b.PaymentID, &b.PaymentCode,
		&b.Status, &b.StartTime, &b.EndTime, &b.QRCode, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// GetBookingDetails возвращает бронирование с названием услуги, магазина и ценой.
func (r *PostgresRepository) GetBookingDetails(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error) {
	var d model.BookingDetails
	err := r.pool.QueryRow(ctx,
		`SELECT b.id, b.offer_id, b.user_id, b.payment_id, b.payment_code, b.status,
		        b.start_time, b.end_time, b.qr_png, b.created_at,
		        s.name, st.name, s.price
		 FROM bookings b
		 JOIN offers o ON o.id = b.offer_id
		 JOIN services s ON s.id = o.service_id
		 JOIN stores st ON st.id = s.store_id
		 WHERE b.id = $1`,
		id,
	).Scan(&d.Booking.ID, &d.Booking.OfferID, &d.Booking.UserID, &d.Booking.PaymentID, &d.Booking.PaymentCode,
		&d.Booking.Status, &d.Booking.StartTime, &d.Booking.EndTime, &d.Booking.QRCode, &d.Booking.CreatedAt,
		&d.ServiceName, &d.StoreName, &d.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking details: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) listBookingDetails(ctx context.Context, where string, args ...any) ([]model.BookingDetails, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.offer_id, b.user_id, b.payment_id, b.payment_code, b.status,
		        b.start_time, b.end_time, b.qr_png, b.created_at,
		        s.name, st.name, s.price
		 FROM bookings b
		 JOIN offers o ON o.id = b.offer_id
		 JOIN services s ON s.id = o.service_id
		 JOIN stores st ON st.id = s.store_id
		 WHERE `+where+`
		 ORDER BY b.start_time DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var res []model.BookingDetails
	for rows.Next() {
		var d model.BookingDetails
		if err := rows.Scan(&d.Booking.ID, &d.Booking.OfferID, &d.Booking.UserID, &d.Booking.PaymentID, &d.Booking.PaymentCode,
			&d.Booking.Status, &d.Booking.StartTime, &d.Booking.EndTime, &d.Booking.QRCode, &d.Booking.CreatedAt,
			&d.ServiceName, &d.StoreName, &d.Price); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListBookingsByOffer возвращает бронирования указанного предложения.
func (r *PostgresRepository) ListBookingsByOffer(ctx context.Context, offerID uuid.UUID) ([]model.BookingDetails, error) {
	return r.listBookingDetails(ctx, `b.offer_id = $1`, offerID)
}

// ListBookingsByStore возвращает бронирования всех предложений магазина.
func (r *PostgresRepository) ListBookingsByStore(ctx context.Context, storeID uuid.UUID) ([]model.BookingDetails, error) {
	return r.listBookingDetails(ctx, `st.id = $1`, storeID)
}

// ListBookingsByUser возвращает бронирования пользователя.
func (r *PostgresRepository) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.BookingDetails, error) {
	return r.listBookingDetails(ctx, `b.user_id = $1`, userID)
}

// BookedIntervals возвращает интервалы неотменённых бронирований предложения
// в пределах [from, to).
func (r *PostgresRepository) BookedIntervals(ctx context.Context, offerID uuid.UUID, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT start_time, end_time
		 FROM bookings
		 WHERE offer_id = $1
		   AND status <> 'cancelled'
		   AND start_time < $3
		   AND end_time > $2
		 ORDER BY start_time`,
		offerID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select booked intervals: %w", err)
	}
	defer rows.Close()

	var res []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		res = append(res, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateBooking изменяет статус и/или интервал бронирования.
// Изменение интервала проходит ту же проверку пересечений, что и вставка.
func (r *PostgresRepository) UpdateBooking(ctx context.Context, id uuid.UUID, status *model.BookingStatus, start, end *time.Time) (*model.Booking, error) {
	var booking *model.Booking
	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`UPDATE bookings
			 SET status = COALESCE($2, status),
			     start_time = COALESCE($3, start_time),
			     end_time = COALESCE($4, end_time)
			 WHERE id = $1
			 RETURNING `+bookingColumns,
			id, status, start, end,
		)
		b, err := scanBooking(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
				return ErrSlotConflict
			}
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// DeleteBooking удаляет бронирование. Бронирование, на которое ссылается
// платёж, удалить нельзя.
func (r *PostgresRepository) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var referenced bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1)`, id,
	).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("check payment reference: %w", err)
	}
	if referenced {
		return ErrBookingReferenced
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RedeemBooking переводит единственное ожидающее бронирование с указанным
// кодом в статус fulfilled. Условное обновление делает операцию безопасной
// при повторном вызове: второй вызов не находит ожидающей брони и
// возвращает ErrNotFound.
func (r *PostgresRepository) RedeemBooking(ctx context.Context, code string) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE bookings
		 SET status = 'fulfilled'
		 WHERE payment_code = $1 AND status = 'pending'
		 RETURNING `+bookingColumns,
		code,
	)
	return scanBooking(row)
}

// ExpireStaleHolds отменяет неоплаченные ожидающие бронирования, созданные
// раньше указанного момента. Возвращает число отменённых бронирований.
func (r *PostgresRepository) ExpireStaleHolds(ctx context.Context, olderThan time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE bookings
		 SET status = 'cancelled'
		 WHERE status = 'pending'
		   AND payment_id IS NULL
		   AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale holds: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

const paymentColumns = `id, user_id, offer_id, booking_id, phone_number, amount,
	merchant_request_id, checkout_request_id, unique_code, status, result_description, payment_date`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.OfferID, &p.BookingID, &p.PhoneNumber, &p.Amount,
		&p.MerchantRequestID, &p.CheckoutRequestID, &p.UniqueCode, &p.Status, &p.ResultDescription, &p.PaymentDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

// GetPaymentByCode возвращает платёж по короткому уникальному коду.
func (r *PostgresRepository) GetPaymentByCode(ctx context.Context, code string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE unique_code = $1`, code)
	return scanPayment(row)
}

// CreatePayment сохраняет новый платёж и связывает с ним бронирование.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (id, user_id, offer_id, booking_id, phone_number, amount,
		                       merchant_request_id, checkout_request_id, unique_code, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.UserID, p.OfferID, p.BookingID, p.PhoneNumber, p.Amount,
		p.MerchantRequestID, p.CheckoutRequestID, p.UniqueCode, p.Status,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE bookings SET payment_id = $2, payment_code = $3 WHERE id = $1`,
		p.BookingID, p.ID, p.UniqueCode,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrCodeInUse
		}
		return fmt.Errorf("link booking to payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PaymentResultOutcome описывает результат применения callback-а шлюза.
type PaymentResultOutcome struct {
	// AlreadyFinal — платёж уже был в терминальном статусе, переход не применялся.
	AlreadyFinal bool
	// BookingAdvanced — связанное бронирование переведено в fulfilled.
	BookingAdvanced bool
	// BookingID — идентификатор связанного бронирования.
	BookingID uuid.UUID
}

// ApplyPaymentResult применяет результат платежа по идентификатору запроса
// шлюза. Условное обновление по статусу 'pending' сериализует конкурирующие
// callbacks: повторная доставка находит платёж уже в терминальном статусе
// и превращается в no-op.
func (r *PostgresRepository) ApplyPaymentResult(ctx context.Context, merchantRequestID string, success bool, description string) (*PaymentResultOutcome, error) {
	var outcome *PaymentResultOutcome
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status := model.PaymentStatusFailed
		if success {
			status = model.PaymentStatusSuccessful
		}

		var bookingID uuid.UUID
		err = tx.QueryRow(ctx,
			`UPDATE payments
			 SET status = $2, result_description = $3
			 WHERE merchant_request_id = $1 AND status = 'pending'
			 RETURNING booking_id`,
			merchantRequestID, status, description,
		).Scan(&bookingID)

		if errors.Is(err, pgx.ErrNoRows) {
			// Либо платёж неизвестен, либо уже в терминальном статусе.
			var existingBookingID uuid.UUID
			selErr := tx.QueryRow(ctx,
				`SELECT booking_id FROM payments WHERE merchant_request_id = $1`,
				merchantRequestID,
			).Scan(&existingBookingID)
			if errors.Is(selErr, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if selErr != nil {
				return fmt.Errorf("select payment: %w", selErr)
			}
			outcome = &PaymentResultOutcome{AlreadyFinal: true, BookingID: existingBookingID}
			return tx.Commit(ctx)
		}
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		res := &PaymentResultOutcome{BookingID: bookingID}

		if success {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE bookings SET status = 'fulfilled' WHERE id = $1 AND status = 'pending'`,
				bookingID,
			)
			if err != nil {
				return fmt.Errorf("advance booking: %w", err)
			}
			res.BookingAdvanced = cmdTag.RowsAffected() == 1
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		outcome = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// StoreBookingStats содержит счётчики бронирований магазина за период.
// Выручка хранится в центах; конверсию в валюту выполняет сервис.
type StoreBookingStats struct {
	Total        int
	Fulfilled    int
	Cancelled    int
	Pending      int
	RevenueCents int64
}

// GetStoreBookingStats возвращает агрегированные счётчики бронирований
// магазина за период [from, to].
func (r *PostgresRepository) GetStoreBookingStats(ctx context.Context, storeID uuid.UUID, from, to time.Time) (*StoreBookingStats, error) {
	var st StoreBookingStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE b.status = 'fulfilled'),
		        COUNT(*) FILTER (WHERE b.status = 'cancelled'),
		        COUNT(*) FILTER (WHERE b.status = 'pending'),
		        COALESCE(SUM(s.price), 0)
		 FROM bookings b
		 JOIN offers o ON o.id = b.offer_id
		 JOIN services s ON s.id = o.service_id
		 WHERE s.store_id = $1
		   AND b.start_time BETWEEN $2 AND $3`,
		storeID, from, to,
	).Scan(&st.Total, &st.Fulfilled, &st.Cancelled, &st.Pending, &st.RevenueCents)
	if err != nil {
		return nil, fmt.Errorf("store booking stats: %w", err)
	}
	return &st, nil
}
