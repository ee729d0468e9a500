package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/pkg/config"
	"roombook/pkg/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	TableName = "bookings"

	pqExclusionViolation = "23P01"
)

const bookingColumns = `id, user_id, room_id, check_in, check_out, guests, special_requests,
	status, payment_method, payment_status, total_price, auto_confirm,
	created_at, updated_at, status_updated_at, status_updated_by, admin_note`

type postgresBookingRepository struct {
	cfg *config.Config
	db  *sql.DB
}

func NewPostgresBookingRepository(cfg *config.Config, db *sql.DB) BookingRepository {
	return &postgresBookingRepository{cfg: cfg, db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var statusUpdatedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.UserID, &b.RoomID, &b.CheckIn, &b.CheckOut, &b.Guests, &b.SpecialRequests,
		&b.Status, &b.PaymentMethod, &b.PaymentStatus, &b.TotalPrice, &b.AutoConfirm,
		&b.CreatedAt, &b.UpdatedAt, &statusUpdatedAt, &b.StatusUpdatedBy, &b.AdminNote,
	)
	if err != nil {
		return nil, err
	}
	if statusUpdatedAt.Valid {
		t := statusUpdatedAt.Time.UTC()
		b.StatusUpdatedAt = &t
	}
	b.CheckIn = b.CheckIn.UTC()
	b.CheckOut = b.CheckOut.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) FindOverlapping(ctx context.Context, iv model.Interval, statuses []model.BookingStatus, excludeID string) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + `
	FROM bookings
	WHERE room_id = $1
	  AND check_in < $3
	  AND check_out > $2
	  AND status = ANY($4)
	  AND ($5 = '' OR id::text <> $5)
	ORDER BY check_in`

	rows, err := r.db.QueryContext(ctx, query, iv.RoomID, iv.CheckIn, iv.CheckOut, pq.Array(statusStrings(statuses)), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping bookings: %w", err)
	}
	return scanBookings(rows)
}

func (r *postgresBookingRepository) Persist(ctx context.Context, b *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.RoomID, b.CheckIn, b.CheckOut, b.Guests, b.SpecialRequests,
		b.Status, b.PaymentMethod, b.PaymentStatus, b.TotalPrice, b.AutoConfirm,
		b.CreatedAt, b.UpdatedAt, b.StatusUpdatedAt, b.StatusUpdatedBy, b.AdminNote,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return bookingserrors.ErrUnavailable
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) UpdateStatus(ctx context.Context, id string, from model.BookingStatus, change model.StatusChange) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	query := `UPDATE bookings
	SET status = $3,
		payment_status = COALESCE(NULLIF($4, ''), payment_status),
		status_updated_at = $5,
		status_updated_by = $6,
		admin_note = COALESCE(NULLIF($7, ''), admin_note),
		updated_at = $5
	WHERE id = $1 AND status = $2
	RETURNING ` + bookingColumns

	row := r.db.QueryRowContext(ctx, query, id, from, change.To, string(change.PaymentStatus), change.At, change.Actor, change.Note)
	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isExclusionViolation(err) {
			return nil, bookingserrors.ErrUnavailable
		}
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil, r.missOrChanged(ctx, id)
}

func (r *postgresBookingRepository) UpdateDetails(ctx context.Context, id string, from model.BookingStatus, change model.DetailsChange) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	query := `UPDATE bookings
	SET check_in = $3, check_out = $4, guests = $5, special_requests = $6, total_price = $7, updated_at = $8
	WHERE id = $1 AND status = $2
	RETURNING ` + bookingColumns

	row := r.db.QueryRowContext(ctx, query, id, from, change.CheckIn, change.CheckOut, change.Guests, change.SpecialRequests, change.TotalPrice, change.At)
	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isExclusionViolation(err) {
			return nil, bookingserrors.ErrUnavailable
		}
		return nil, fmt.Errorf("failed to update booking details: %w", err)
	}
	return nil, r.missOrChanged(ctx, id)
}

// missOrChanged tells a missing row apart from a lost compare-and-set.
func (r *postgresBookingRepository) missOrChanged(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check booking existence: %w", err)
	}
	if !exists {
		return bookingserrors.ErrNotFound
	}
	return bookingserrors.ErrStatusChanged
}

func (r *postgresBookingRepository) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + `
	FROM bookings
	WHERE status = 'pending' AND auto_confirm = FALSE AND created_at < $1
	ORDER BY created_at
	LIMIT 500`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired bookings: %w", err)
	}
	return scanBookings(rows)
}

func (r *postgresBookingRepository) FindPendingAutoConfirm(ctx context.Context) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + `
	FROM bookings
	WHERE status = 'pending' AND auto_confirm = TRUE
	ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find auto-confirm bookings: %w", err)
	}
	return scanBookings(rows)
}

func (r *postgresBookingRepository) Find(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	return scanBookings(rows)
}

func (r *postgresBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	where, args := buildWhere(filter)
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *postgresBookingRepository) Stats(ctx context.Context, since time.Time) (*model.BookingStats, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	stats := &model.BookingStats{ByStatus: make(map[model.BookingStatus]int64)}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate booking statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status model.BookingStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	monthly, err := r.db.QueryContext(ctx, `
	SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		COUNT(*),
		COALESCE(SUM(total_price) FILTER (WHERE status IN ('confirmed', 'completed')), 0)
	FROM bookings
	WHERE created_at >= $1
	GROUP BY month
	ORDER BY month`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly bookings: %w", err)
	}
	defer monthly.Close()
	for monthly.Next() {
		var m model.MonthlyStat
		if err := monthly.Scan(&m.Month, &m.Count, &m.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan monthly stat: %w", err)
		}
		stats.Monthly = append(stats.Monthly, m)
	}
	if err := monthly.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monthly stats: %w", err)
	}

	return stats, nil
}

func (r *postgresBookingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// buildWhere renders filter as a WHERE clause with positional arguments.
func buildWhere(filter model.BookingFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.RoomID != nil {
		add("room_id = $%d", *filter.RoomID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.From != nil {
		add("check_in >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("check_in <= $%d", *filter.To)
	}
	if filter.CreatedAfter != nil {
		add("created_at >= $%d", *filter.CreatedAfter)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqExclusionViolation
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}
