package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"booking-service/internal/domain"
	"booking-service/internal/timeutil"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is a Store backed by pgx. The per-event-type critical section
// is a transaction holding pg_advisory_xact_lock(event_type_id).
type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dbURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Postgres{DB: pool}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.DB.Exec(ctx, schemaSQL)
	return err
}

func (p *Postgres) Close() { p.DB.Close() }

const eventTypeColumns = `id,name,description,duration_minutes,location_kind,location_detail,active,
	max_bookings_per_day,buffer_before_minutes,buffer_after_minutes,min_lead_time_hours,max_advance_days,
	created_at,updated_at`

func scanEventType(row pgx.Row) (domain.EventType, error) {
	var et domain.EventType
	err := row.Scan(&et.ID, &et.Name, &et.Description, &et.DurationMins, &et.LocationKind, &et.LocationDetail,
		&et.Active, &et.MaxBookingsPerDay, &et.BufferBeforeMins, &et.BufferAfterMins, &et.MinLeadHours,
		&et.MaxAdvanceDays, &et.CreatedAt, &et.UpdatedAt)
	return et, err
}

func (p *Postgres) GetEventType(ctx context.Context, id int64) (domain.EventType, error) {
	q := `SELECT ` + eventTypeColumns + ` FROM event_types WHERE id=$1`
	et, err := scanEventType(p.DB.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EventType{}, fmt.Errorf("%w: id %d", domain.ErrEventTypeNotFound, id)
	}
	return et, err
}

func (p *Postgres) ListEventTypes(ctx context.Context, activeOnly bool) ([]domain.EventType, error) {
	q := `SELECT ` + eventTypeColumns + ` FROM event_types WHERE active OR NOT $1 ORDER BY id`
	rows, err := p.DB.Query(ctx, q, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateEventType(ctx context.Context, et *domain.EventType) error {
	now := time.Now().UTC()
	q := `INSERT INTO event_types
	      (name,description,duration_minutes,location_kind,location_detail,active,max_bookings_per_day,
	       buffer_before_minutes,buffer_after_minutes,min_lead_time_hours,max_advance_days,created_at,updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`
	err := p.DB.QueryRow(ctx, q,
		et.Name, et.Description, et.DurationMins, et.LocationKind, et.LocationDetail, et.Active,
		et.MaxBookingsPerDay, et.BufferBeforeMins, et.BufferAfterMins, et.MinLeadHours, et.MaxAdvanceDays,
		now, now).Scan(&et.ID)
	if err != nil {
		return err
	}
	et.CreatedAt, et.UpdatedAt = now, now
	return nil
}

func (p *Postgres) GetRules(ctx context.Context, eventTypeID int64) ([]domain.AvailabilityRule, error) {
	q := `SELECT id,event_type_id,day_of_week,to_char(start_time,'HH24:MI'),to_char(end_time,'HH24:MI'),
	             timezone,active,created_at,updated_at
	      FROM availability_rules WHERE event_type_id=$1 ORDER BY id`
	rows, err := p.DB.Query(ctx, q, eventTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AvailabilityRule
	for rows.Next() {
		var r domain.AvailabilityRule
		if err := rows.Scan(&r.ID, &r.EventTypeID, &r.DayOfWeek, &r.StartTime, &r.EndTime,
			&r.Timezone, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetExceptions(ctx context.Context, eventTypeID int64, from, to timeutil.Date) ([]domain.AvailabilityException, error) {
	q := `SELECT id,event_type_id,to_char(date,'YYYY-MM-DD'),kind,
	             COALESCE(to_char(start_time,'HH24:MI'),''),COALESCE(to_char(end_time,'HH24:MI'),''),
	             timezone,reason,created_at
	      FROM availability_exceptions
	      WHERE event_type_id=$1 AND date BETWEEN $2::text::date AND $3::text::date
	      ORDER BY date, id`
	rows, err := p.DB.Query(ctx, q, eventTypeID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AvailabilityException
	for rows.Next() {
		var ex domain.AvailabilityException
		if err := rows.Scan(&ex.ID, &ex.EventTypeID, &ex.Date, &ex.Kind, &ex.StartTime, &ex.EndTime,
			&ex.Timezone, &ex.Reason, &ex.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertRule(ctx context.Context, r *domain.AvailabilityRule) error {
	now := time.Now().UTC()
	q := `INSERT INTO availability_rules
	      (event_type_id,day_of_week,start_time,end_time,timezone,active,created_at,updated_at)
	      VALUES ($1,$2,$3::text::time,$4::text::time,$5,$6,$7,$8) RETURNING id`
	err := p.DB.QueryRow(ctx, q, r.EventTypeID, r.DayOfWeek, r.StartTime, r.EndTime,
		r.Timezone, r.Active, now, now).Scan(&r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (p *Postgres) InsertException(ctx context.Context, ex *domain.AvailabilityException) error {
	now := time.Now().UTC()
	q := `INSERT INTO availability_exceptions
	      (event_type_id,date,kind,start_time,end_time,timezone,reason,created_at)
	      VALUES ($1,$2::text::date,$3,NULLIF($4,'')::time,NULLIF($5,'')::time,$6,$7,$8) RETURNING id`
	err := p.DB.QueryRow(ctx, q, ex.EventTypeID, ex.Date, ex.Kind, ex.StartTime, ex.EndTime,
		ex.Timezone, ex.Reason, now).Scan(&ex.ID)
	if err != nil {
		return err
	}
	ex.CreatedAt = now
	return nil
}

const bookingColumns = `uuid,event_type_id,start_at_utc,end_at_utc,status,token_version,reschedule_count,
	cancellation_reason,created_at,updated_at,cancelled_at,rescheduled_at,reminded_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.UUID, &b.EventTypeID, &b.StartUTC, &b.EndUTC, &b.Status, &b.TokenVersion,
		&b.RescheduleCount, &b.CancellationReason, &b.CreatedAt, &b.UpdatedAt, &b.CancelledAt,
		&b.RescheduledAt, &b.RemindedAt)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listActive(ctx context.Context, q querier, eventTypeID int64, from, to time.Time, exclude uuid.UUID) ([]domain.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings
	        WHERE event_type_id=$1 AND status IN ('confirmed','rescheduled')
	          AND start_at_utc < $3 AND end_at_utc > $2 AND uuid <> $4
	        ORDER BY start_at_utc`
	rows, err := q.Query(ctx, sql, eventTypeID, from, to, exclude)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListActive(ctx context.Context, eventTypeID int64, from, to time.Time) ([]domain.Booking, error) {
	return listActive(ctx, p.DB, eventTypeID, from, to, uuid.Nil)
}

func (p *Postgres) GetDetail(ctx context.Context, id uuid.UUID) (domain.BookingDetail, error) {
	b, err := scanBooking(p.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE uuid=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingDetail{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	if err != nil {
		return domain.BookingDetail{}, err
	}

	d := domain.BookingDetail{Booking: b}
	err = p.DB.QueryRow(ctx,
		`SELECT booking_uuid,name,email,timezone,notes,created_at FROM invitees WHERE booking_uuid=$1`, id,
	).Scan(&d.Invitee.BookingUUID, &d.Invitee.Name, &d.Invitee.Email, &d.Invitee.Timezone,
		&d.Invitee.Notes, &d.Invitee.CreatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingDetail{}, err
	}

	d.EventType, err = p.GetEventType(ctx, b.EventTypeID)
	if err != nil {
		return domain.BookingDetail{}, err
	}
	return d, nil
}

func (p *Postgres) ListBookings(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	rows, err := p.DB.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
	      WHERE start_at_utc >= $1 AND start_at_utc < $2 ORDER BY start_at_utc`, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListDueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	rows, err := p.DB.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
	      WHERE status IN ('confirmed','rescheduled') AND reminded_at IS NULL
	        AND start_at_utc >= $1 AND start_at_utc < $2
	      ORDER BY start_at_utc`, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := p.DB.Exec(ctx, `UPDATE bookings SET reminded_at=$1 WHERE uuid=$2`, at, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return nil
}

func (p *Postgres) WithEventTypeLock(ctx context.Context, eventTypeID int64, fn func(tx BookingTx) error) error {
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventTypeID); err != nil {
		return fmt.Errorf("acquire event type lock: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE uuid=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b, err
}

func (t *pgTx) FindConflicting(ctx context.Context, eventTypeID int64, from, to time.Time, exclude uuid.UUID) ([]domain.Booking, error) {
	return listActive(ctx, t.tx, eventTypeID, from, to, exclude)
}

func (t *pgTx) CountForDay(ctx context.Context, eventTypeID int64, dayStart, dayEnd time.Time, exclude uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM bookings
	      WHERE event_type_id=$1 AND status IN ('confirmed','rescheduled')
	        AND start_at_utc >= $2 AND start_at_utc < $3 AND uuid <> $4`,
		eventTypeID, dayStart, dayEnd, exclude).Scan(&n)
	return n, err
}

func (t *pgTx) Insert(ctx context.Context, b domain.Booking, inv domain.Invitee) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO bookings
	      (uuid,event_type_id,start_at_utc,end_at_utc,status,token_version,reschedule_count,
	       cancellation_reason,created_at,updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.UUID, b.EventTypeID, b.StartUTC, b.EndUTC, b.Status, b.TokenVersion, b.RescheduleCount,
		b.CancellationReason, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO invitees (booking_uuid,name,email,timezone,notes,created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.BookingUUID, inv.Name, inv.Email, inv.Timezone, inv.Notes, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitee: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, reason string, at time.Time) error {
	q := `UPDATE bookings SET status=$1, updated_at=$2,
	        cancelled_at = CASE WHEN $1 = 'cancelled' THEN $2 ELSE cancelled_at END,
	        cancellation_reason = CASE WHEN $1 = 'cancelled' THEN $3 ELSE cancellation_reason END
	      WHERE uuid=$4`
	res, err := t.tx.Exec(ctx, q, status, at, reason, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return nil
}

func (t *pgTx) UpdateWindow(ctx context.Context, id uuid.UUID, start, end, at time.Time) (domain.Booking, error) {
	q := `UPDATE bookings
	      SET start_at_utc=$1, end_at_utc=$2, token_version=token_version+1,
	          reschedule_count=reschedule_count+1, rescheduled_at=$3, reminded_at=NULL, updated_at=$3
	      WHERE uuid=$4
	      RETURNING ` + bookingColumns
	b, err := scanBooking(t.tx.QueryRow(ctx, q, start.UTC(), end.UTC(), at, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b, err
}
