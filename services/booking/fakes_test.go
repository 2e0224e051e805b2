package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	profileRepo "mentorbook/database/repository/profile"
	reservationRepo "mentorbook/database/repository/reservation"
	schedulerRepo "mentorbook/database/repository/scheduler"
	"mentorbook/models"
)

// memStore implements the four repositories the engine uses. WithMentorLock takes a
// per-mentor mutex and rolls back the writes made through its context when fn fails.
type memStore struct {
	mu           sync.Mutex
	mentees      map[string]models.Mentee
	mentors      map[string]models.Mentor
	services     map[string]models.Service
	slots        []models.AvailabilitySlot
	reservations map[string]models.Reservation
	sessions     map[string]models.Session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		mentees:      make(map[string]models.Mentee),
		mentors:      make(map[string]models.Mentor),
		services:     make(map[string]models.Service),
		reservations: make(map[string]models.Reservation),
		sessions:     make(map[string]models.Session),
		locks:        make(map[string]*sync.Mutex),
	}
}

type txKey struct{}

type txJournal struct {
	undo []func()
}

// record registers an undo step when ctx belongs to a WithMentorLock call. Callers hold s.mu.
func (s *memStore) record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*txJournal); ok {
		j.undo = append(j.undo, undo)
	}
}

func (s *memStore) mentorLock(mentorID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[mentorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[mentorID] = l
	}
	return l
}

// Scheduler repository.

func (s *memStore) WithMentorLock(ctx context.Context, mentorID string, fn func(ctx context.Context) error) error {
	l := s.mentorLock(mentorID)
	l.Lock()
	defer l.Unlock()

	j := &txJournal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) FindOverlappingSessions(_ context.Context, mentorID string, start, end time.Time) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.MentorID == mentorID && sess.IsActive() && reservationRepo.Overlaps(sess.StartUTC, sess.EndUTC, start, end) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out, nil
}

func (s *memStore) InsertSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ReservationID != "" {
		for _, existing := range s.sessions {
			if existing.ReservationID == sess.ReservationID {
				return schedulerRepo.ErrDuplicateSession
			}
		}
	}
	s.sessions[sess.ID] = *sess
	id := sess.ID
	s.record(ctx, func() { delete(s.sessions, id) })
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, schedulerRepo.ErrNotFound
	}
	return &sess, nil
}

func (s *memStore) GetSessionByReservation(_ context.Context, reservationID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ReservationID == reservationID {
			out := sess
			return &out, nil
		}
	}
	return nil, schedulerRepo.ErrNotFound
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Reservation repository.

func (s *memStore) Create(ctx context.Context, r *models.Reservation) (*models.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reservations {
		if existing.MenteeID == r.MenteeID && existing.IdempotencyKey == r.IdempotencyKey {
			out := existing
			return &out, false, nil
		}
	}
	s.reservations[r.ID] = *r
	id := r.ID
	s.record(ctx, func() { delete(s.reservations, id) })
	out := *r
	return &out, true, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, reservationRepo.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) GetByIdempotencyKey(_ context.Context, menteeID, key string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.MenteeID == menteeID && r.IdempotencyKey == key {
			out := r
			return &out, nil
		}
	}
	return nil, reservationRepo.ErrNotFound
}

func (s *memStore) GetByCheckoutHandle(_ context.Context, handle string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.CheckoutHandle == handle {
			out := r
			return &out, nil
		}
	}
	return nil, reservationRepo.ErrNotFound
}

func (s *memStore) AttachCheckout(ctx context.Context, id, handle, url string) (*models.Reservation, error) {
	return s.update(ctx, id, []models.ReservationStatus{models.ReservationPending}, func(r *models.Reservation) {
		r.CheckoutHandle = handle
		r.CheckoutURL = url
	})
}

func (s *memStore) Transition(ctx context.Context, id string, from []models.ReservationStatus, to models.ReservationStatus, patch models.ReservationPatch) (*models.Reservation, error) {
	if err := reservationRepo.ValidateTransition(from, to); err != nil {
		return nil, err
	}
	return s.update(ctx, id, from, func(r *models.Reservation) {
		r.Status = to
		if patch.CheckoutHandle != "" {
			r.CheckoutHandle = patch.CheckoutHandle
		}
		if patch.CheckoutURL != "" {
			r.CheckoutURL = patch.CheckoutURL
		}
		if patch.SessionID != "" {
			r.SessionID = patch.SessionID
		}
		if patch.FailureCode != "" {
			r.FailureCode = patch.FailureCode
		}
		if !patch.ExpiresAt.IsZero() {
			r.ExpiresAt = patch.ExpiresAt
		}
	})
}

func (s *memStore) update(ctx context.Context, id string, from []models.ReservationStatus, apply func(*models.Reservation)) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, reservationRepo.ErrNotFound
	}
	matched := false
	for _, f := range from {
		if r.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, reservationRepo.ErrStaleTransition
	}
	before := r
	apply(&r)
	r.UpdatedAt = time.Now().UTC()
	s.reservations[id] = r
	s.record(ctx, func() { s.reservations[id] = before })
	out := r
	return &out, nil
}

func (s *memStore) FindActiveClaims(_ context.Context, mentorID string, start, end, now time.Time, excludeID string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.MentorID != mentorID || r.ID == excludeID || !r.ClaimActive(now) {
			continue
		}
		if reservationRepo.Overlaps(r.StartUTC, r.EndUTC(), start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) FindExpired(_ context.Context, now time.Time, limit int64) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.Status.Claims() && !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) reservation(id string) models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id]
}

// Profile repository.

func (s *memStore) GetMentee(_ context.Context, id string) (*models.Mentee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentees[id]
	if !ok {
		return nil, profileRepo.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) GetMentor(_ context.Context, id string) (*models.Mentor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentors[id]
	if !ok {
		return nil, profileRepo.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) GetService(_ context.Context, id string) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, profileRepo.ErrNotFound
	}
	return &svc, nil
}

// Timeslot repository.

func (s *memStore) GetByMentorAndDate(_ context.Context, mentorID, date string) ([]models.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AvailabilitySlot
	for _, slot := range s.slots {
		if slot.MentorID == mentorID && slot.Date == date {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *memStore) GetAvailableInRange(_ context.Context, mentorID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AvailabilitySlot
	for _, slot := range s.slots {
		if slot.MentorID == mentorID && slot.IsAvailable && slot.Date >= fromDate && slot.Date <= toDate {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

// fakeGateway keeps checkouts by idempotency key, like the real provider does.
type fakeGateway struct {
	mu          sync.Mutex
	byKey       map[string]string
	checkouts   map[string]*Checkout
	requests    map[string]CheckoutRequest
	createCalls int
	creates     int
	expired     []string

	// failCreates fails the next calls before anything is created.
	failCreates int
	// loseResponses creates the checkout but reports a timeout, as if the response was lost.
	loseResponses int
	// payOnExpire completes the payment just before an expire request reaches the checkout.
	payOnExpire bool
	// failExpires fails the next expire calls as unreachable.
	failExpires int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		byKey:     make(map[string]string),
		checkouts: make(map[string]*Checkout),
		requests:  make(map[string]CheckoutRequest),
	}
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.failCreates > 0 {
		g.failCreates--
		return nil, fmt.Errorf("create: %w", ErrGatewayTransient)
	}

	handle, ok := g.byKey[req.IdempotencyKey]
	if !ok {
		g.creates++
		handle = fmt.Sprintf("cs_test_%d", g.creates)
		g.byKey[req.IdempotencyKey] = handle
		g.checkouts[handle] = &Checkout{
			Handle: handle,
			URL:    "https://checkout.test/" + handle,
			Status: CheckoutOpen,
		}
		g.requests[handle] = req
	}
	if g.loseResponses > 0 {
		g.loseResponses--
		return nil, fmt.Errorf("create: %w", ErrGatewayTransient)
	}
	out := *g.checkouts[handle]
	return &out, nil
}

func (g *fakeGateway) GetCheckout(_ context.Context, handle string) (*Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.checkouts[handle]
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	out := *c
	return &out, nil
}

func (g *fakeGateway) ExpireCheckout(_ context.Context, handle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failExpires > 0 {
		g.failExpires--
		return fmt.Errorf("expire: %w", ErrGatewayTransient)
	}
	c, ok := g.checkouts[handle]
	if !ok {
		return ErrCheckoutNotFound
	}
	if g.payOnExpire && c.Status == CheckoutOpen {
		c.Status = CheckoutPaid
	}
	if c.Status == CheckoutOpen {
		c.Status = CheckoutExpired
		g.expired = append(g.expired, handle)
	}
	return nil
}

// pay completes a checkout as if the mentee finished paying.
func (g *fakeGateway) pay(handle string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts[handle].Status = CheckoutPaid
}

func (g *fakeGateway) request(handle string) CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[handle]
}

func (g *fakeGateway) counts() (calls, creates int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.creates
}

type fakeExpiry struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
}

func (f *fakeExpiry) ScheduleExpiry(_ context.Context, reservationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduled == nil {
		f.scheduled = make(map[string]time.Time)
	}
	f.scheduled[reservationID] = at
	return nil
}

type memCache struct {
	mu      sync.Mutex
	views   map[string]models.ReservationView
	handles map[string]string
	sets    int
}

func newMemCache() *memCache {
	return &memCache{views: make(map[string]models.ReservationView), handles: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, id string) (*models.ReservationView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (c *memCache) Set(_ context.Context, view *models.ReservationView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view.Status.IsTerminal() {
		c.views[view.ReservationID] = *view
		c.sets++
	}
}

func (c *memCache) ReservationIDForHandle(_ context.Context, handle string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.handles[handle]
	return id, ok
}

func (c *memCache) RememberHandle(_ context.Context, handle, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[handle] = id
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
