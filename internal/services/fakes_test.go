package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/spknum"
)

var errStore = errors.New("store down")

// memCounter is a mutex-guarded counter. Setting fail makes every call error.
type memCounter struct {
	mu    sync.Mutex
	vals  map[string]int64
	fail  bool
	calls int
}

func newMemCounter() *memCounter { return &memCounter{vals: map[string]int64{}} }

func (c *memCounter) Increment(ctx context.Context, prefix string, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return 0, errStore
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.vals[prefix]++
	return c.vals[prefix], nil
}

func (c *memCounter) AdvanceTo(_ context.Context, prefix string, value int64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errStore
	}
	if c.vals[prefix] < value {
		c.vals[prefix] = value
	}
	return nil
}

func (c *memCounter) get(prefix string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vals[prefix]
}

// memReservations mirrors the SQL store semantics in memory.
type memReservations struct {
	mu          sync.Mutex
	rows        map[string]domain.Reservation
	claimErr    error
	extendErrs  int // number of leading Extend calls that fail
	extendCalls int
	claims      int
	released    []string
}

func newMemReservations() *memReservations {
	return &memReservations{rows: map[string]domain.Reservation{}}
}

func (m *memReservations) Claim(_ context.Context, number string, now time.Time, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if m.claimErr != nil {
		return false, m.claimErr
	}
	if r, ok := m.rows[number]; ok && r.Live(now) {
		return false, nil
	}
	m.rows[number] = domain.Reservation{Number: number, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (m *memReservations) Extend(_ context.Context, number string, now time.Time, ttl time.Duration) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extendCalls++
	if m.extendCalls <= m.extendErrs {
		return nil, errStore
	}
	r, ok := m.rows[number]
	if !ok || !r.Live(now) {
		return nil, domain.ErrReservationNotFound
	}
	next := now.Add(ttl)
	if !next.After(r.ExpiresAt) {
		next = r.ExpiresAt.Add(time.Microsecond)
	}
	r.ExpiresAt = next
	m.rows[number] = r
	return &r, nil
}

func (m *memReservations) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if !r.Live(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memReservations) Release(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, number)
	m.released = append(m.released, number)
	return nil
}

func (m *memReservations) hold(number string, now time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[number] = domain.Reservation{Number: number, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func (m *memReservations) live(number string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[number]
	return ok && r.Live(now)
}

// memOrders is an in-memory OrderRepo.
type memOrders struct {
	mu      sync.Mutex
	rows    map[string]domain.Order
	fail    bool
	lookups int
}

func newMemOrders(spks ...string) *memOrders {
	o := &memOrders{rows: map[string]domain.Order{}}
	for _, s := range spks {
		o.rows[s] = domain.Order{ID: s, SPK: s, Customer: "seed"}
	}
	return o
}

func (o *memOrders) add(spks ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range spks {
		o.rows[s] = domain.Order{ID: s, SPK: s, Customer: "seed"}
	}
}

func (o *memOrders) ExistsBySPK(_ context.Context, spk string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups++
	if o.fail {
		return false, errStore
	}
	_, ok := o.rows[spk]
	return ok, nil
}

func (o *memOrders) MaxSequence(_ context.Context, prefix string, width int) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return 0, errStore
	}
	f := spknum.Format{Width: width}
	var highest int64
	for spk := range o.rows {
		if !strings.HasPrefix(spk, prefix) {
			continue
		}
		if _, seq, err := f.Parse(spk); err == nil && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (o *memOrders) Create(_ context.Context, ord *domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errStore
	}
	if _, ok := o.rows[ord.SPK]; ok {
		return domain.ErrDuplicate
	}
	o.rows[ord.SPK] = *ord
	return nil
}

func (o *memOrders) EachBatch(_ context.Context, batchSize int, fn func([]domain.Order) error) error {
	o.mu.Lock()
	all := make([]domain.Order, 0, len(o.rows))
	for _, r := range o.rows {
		all = append(all, r)
	}
	o.mu.Unlock()
	for i := 0; i < len(all); i += batchSize {
		end := i + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// memIdempotency is an in-memory IdempotencyRepo.
type memIdempotency struct {
	mu   sync.Mutex
	rows map[string]domain.Idempotency
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{rows: map[string]domain.Idempotency{}}
}

func (m *memIdempotency) Get(_ context.Context, clientID, key string, now time.Time) (*domain.Idempotency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[clientID+"|"+key]
	if !ok || !r.ExpiresAt.After(now) {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (m *memIdempotency) Save(_ context.Context, clientID, key, spk string, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := clientID + "|" + key
	if r, ok := m.rows[k]; ok && r.ExpiresAt.After(now) {
		return nil, domain.ErrDuplicate
	}
	r := domain.Idempotency{ID: k, ClientID: clientID, Key: key, SPK: spk, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	m.rows[k] = r
	return &r, nil
}

func (m *memIdempotency) Forget(_ context.Context, clientID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, clientID+"|"+key)
	return nil
}

func (m *memIdempotency) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if !r.ExpiresAt.After(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}
