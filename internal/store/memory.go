package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"booking-service/internal/domain"
	"booking-service/internal/timeutil"
)

// Memory is a single-process Store. The per-event-type critical section is
// a mutex keyed by event type id.
type Memory struct {
	mu         sync.RWMutex
	nextID     int64
	eventTypes map[int64]domain.EventType
	rules      map[int64][]domain.AvailabilityRule
	exceptions map[int64][]domain.AvailabilityException
	bookings   map[uuid.UUID]domain.Booking
	invitees   map[uuid.UUID]domain.Invitee

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		eventTypes: map[int64]domain.EventType{},
		rules:      map[int64][]domain.AvailabilityRule{},
		exceptions: map[int64][]domain.AvailabilityException{},
		bookings:   map[uuid.UUID]domain.Booking{},
		invitees:   map[uuid.UUID]domain.Invitee{},
		locks:      map[int64]*sync.Mutex{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Close() {}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) GetEventType(_ context.Context, id int64) (domain.EventType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	et, ok := m.eventTypes[id]
	if !ok {
		return domain.EventType{}, fmt.Errorf("%w: id %d", domain.ErrEventTypeNotFound, id)
	}
	return et, nil
}

func (m *Memory) ListEventTypes(_ context.Context, activeOnly bool) ([]domain.EventType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.EventType, 0, len(m.eventTypes))
	for _, et := range m.eventTypes {
		if activeOnly && !et.Active {
			continue
		}
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateEventType(_ context.Context, et *domain.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	et.ID = m.id()
	et.CreatedAt, et.UpdatedAt = now, now
	m.eventTypes[et.ID] = *et
	return nil
}

func (m *Memory) GetRules(_ context.Context, eventTypeID int64) ([]domain.AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.AvailabilityRule(nil), m.rules[eventTypeID]...), nil
}

func (m *Memory) GetExceptions(_ context.Context, eventTypeID int64, from, to timeutil.Date) ([]domain.AvailabilityException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AvailabilityException
	for _, ex := range m.exceptions[eventTypeID] {
		d, err := timeutil.ParseDate(ex.Date)
		if err != nil {
			return nil, err
		}
		if from.After(d) || d.After(to) {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (m *Memory) InsertRule(_ context.Context, r *domain.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.eventTypes[r.EventTypeID]; !ok {
		return fmt.Errorf("%w: id %d", domain.ErrEventTypeNotFound, r.EventTypeID)
	}
	now := m.now()
	r.ID = m.id()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rules[r.EventTypeID] = append(m.rules[r.EventTypeID], *r)
	return nil
}

func (m *Memory) InsertException(_ context.Context, ex *domain.AvailabilityException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.eventTypes[ex.EventTypeID]; !ok {
		return fmt.Errorf("%w: id %d", domain.ErrEventTypeNotFound, ex.EventTypeID)
	}
	ex.ID = m.id()
	ex.CreatedAt = m.now()
	m.exceptions[ex.EventTypeID] = append(m.exceptions[ex.EventTypeID], *ex)
	return nil
}

func (m *Memory) ListActive(_ context.Context, eventTypeID int64, from, to time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter(func(b domain.Booking) bool {
		return b.EventTypeID == eventTypeID && b.Status.Blocks() &&
			timeutil.Overlaps(b.StartUTC, b.EndUTC, from, to)
	}), nil
}

func (m *Memory) GetDetail(_ context.Context, id uuid.UUID) (domain.BookingDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.BookingDetail{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return domain.BookingDetail{
		Booking:   b,
		Invitee:   m.invitees[id],
		EventType: m.eventTypes[b.EventTypeID],
	}, nil
}

func (m *Memory) ListBookings(_ context.Context, from, to time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter(func(b domain.Booking) bool {
		return !b.StartUTC.Before(from) && b.StartUTC.Before(to)
	}), nil
}

func (m *Memory) ListDueReminders(_ context.Context, from, to time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter(func(b domain.Booking) bool {
		return b.Status.Blocks() && b.RemindedAt == nil &&
			!b.StartUTC.Before(from) && b.StartUTC.Before(to)
	}), nil
}

func (m *Memory) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	b.RemindedAt = &at
	m.bookings[id] = b
	return nil
}

// filter must be called with m.mu held.
func (m *Memory) filter(keep func(domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out
}

func (m *Memory) eventTypeLock(id int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Memory) WithEventTypeLock(ctx context.Context, eventTypeID int64, fn func(tx BookingTx) error) error {
	l := m.eventTypeLock(eventTypeID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		m:        m,
		bookings: map[uuid.UUID]domain.Booking{},
		invitees: map[uuid.UUID]domain.Invitee{},
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range tx.bookings {
		m.bookings[id] = b
	}
	for id, inv := range tx.invitees {
		m.invitees[id] = inv
	}
	return nil
}

// memTx stages writes and applies them when the critical section succeeds.
type memTx struct {
	m        *Memory
	bookings map[uuid.UUID]domain.Booking
	invitees map[uuid.UUID]domain.Invitee
}

func (tx *memTx) lookup(id uuid.UUID) (domain.Booking, bool) {
	if b, ok := tx.bookings[id]; ok {
		return b, true
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	b, ok := tx.m.bookings[id]
	return b, ok
}

// snapshot merges committed bookings with the staged ones.
func (tx *memTx) snapshot() []domain.Booking {
	tx.m.mu.RLock()
	all := make(map[uuid.UUID]domain.Booking, len(tx.m.bookings)+len(tx.bookings))
	for id, b := range tx.m.bookings {
		all[id] = b
	}
	tx.m.mu.RUnlock()
	for id, b := range tx.bookings {
		all[id] = b
	}
	out := make([]domain.Booking, 0, len(all))
	for _, b := range all {
		out = append(out, b)
	}
	return out
}

func (tx *memTx) Get(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	b, ok := tx.lookup(id)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b, nil
}

func (tx *memTx) FindConflicting(_ context.Context, eventTypeID int64, from, to time.Time, exclude uuid.UUID) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range tx.snapshot() {
		if b.EventTypeID != eventTypeID || b.UUID == exclude || !b.Status.Blocks() {
			continue
		}
		if timeutil.Overlaps(from, to, b.StartUTC, b.EndUTC) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (tx *memTx) CountForDay(_ context.Context, eventTypeID int64, dayStart, dayEnd time.Time, exclude uuid.UUID) (int, error) {
	n := 0
	for _, b := range tx.snapshot() {
		if b.EventTypeID != eventTypeID || b.UUID == exclude || !b.Status.Blocks() {
			continue
		}
		if !b.StartUTC.Before(dayStart) && b.StartUTC.Before(dayEnd) {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) Insert(_ context.Context, b domain.Booking, inv domain.Invitee) error {
	if _, exists := tx.lookup(b.UUID); exists {
		return fmt.Errorf("booking %s already exists", b.UUID)
	}
	tx.bookings[b.UUID] = b
	tx.invitees[b.UUID] = inv
	return nil
}

func (tx *memTx) UpdateStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus, reason string, at time.Time) error {
	b, ok := tx.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	b.Status = status
	b.UpdatedAt = at
	if status == domain.BookingCancelled {
		b.CancelledAt = &at
		b.CancellationReason = reason
	}
	tx.bookings[id] = b
	return nil
}

func (tx *memTx) UpdateWindow(_ context.Context, id uuid.UUID, start, end, at time.Time) (domain.Booking, error) {
	b, ok := tx.lookup(id)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	b.StartUTC, b.EndUTC = start.UTC(), end.UTC()
	b.TokenVersion++
	b.RescheduleCount++
	b.RescheduledAt = &at
	b.RemindedAt = nil
	b.UpdatedAt = at
	tx.bookings[id] = b
	return b, nil
}
