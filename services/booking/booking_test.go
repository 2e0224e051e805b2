package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mentorbook/models"
)

const (
	menteeA       = "6f1d9a3e-2b4c-4d5e-8f70-1a2b3c4d5e6f"
	menteeB       = "7a2e0b4f-3c5d-4e6f-9a81-2b3c4d5e6f70"
	mentorID      = "0c9b8a7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d"
	freeServiceID = "1d2c3b4a-5f6e-4d7c-8b9a-0f1e2d3c4b5a"
	paidServiceID = "2e3d4c5b-6a7f-4e8d-9cab-1f2e3d4c5b6a"
)

var (
	testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	slot15  = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
)

type harness struct {
	store   *memStore
	gateway *fakeGateway
	expiry  *fakeExpiry
	clock   *testClock
	svc     *DefaultBookingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	store.mentees[menteeA] = models.Mentee{ID: menteeA, Name: "Ada"}
	store.mentees[menteeB] = models.Mentee{ID: menteeB, Name: "Linus"}
	store.mentors[mentorID] = models.Mentor{ID: mentorID, Name: "Grace", Active: true}
	store.services[freeServiceID] = models.Service{
		ID: freeServiceID, MentorID: mentorID, Title: "Intro call", DurationMinutes: 30, Active: true,
	}
	store.services[paidServiceID] = models.Service{
		ID: paidServiceID, MentorID: mentorID, Title: "Career session",
		PriceCents: 5000, Currency: "USD", DurationMinutes: 30, Active: true,
	}
	store.slots = []models.AvailabilitySlot{
		{ID: "s1", MentorID: mentorID, Date: "2025-03-01", StartMinute: 15 * 60, EndMinute: 15*60 + 30, IsAvailable: true},
		{ID: "s2", MentorID: mentorID, Date: "2025-03-01", StartMinute: 16 * 60, EndMinute: 17 * 60, IsAvailable: true},
		{ID: "s3", MentorID: mentorID, Date: "2025-03-02", StartMinute: 9 * 60, EndMinute: 10 * 60, IsAvailable: true},
		{ID: "s4", MentorID: mentorID, Date: "2025-03-03", StartMinute: 9 * 60, EndMinute: 10 * 60, IsAvailable: false},
	}

	clock := &testClock{now: testNow}
	gateway := newFakeGateway()
	expiry := &fakeExpiry{}
	engine := &DefaultSchedulingEngine{
		Scheduler:       store,
		Reservations:    store,
		Timeslots:       store,
		Profiles:        store,
		SuggestionLimit: 5,
		SuggestionDays:  3,
		Now:             clock.Now,
	}
	svc := &DefaultBookingService{
		Engine:  engine,
		Gateway: gateway,
		Expiry:  expiry,
		Config: ReservationConfig{
			TTL:                30 * time.Minute,
			PaidGrace:          10 * time.Minute,
			GatewayMaxAttempts: 3,
			GatewayBaseBackoff: time.Millisecond,
			DefaultCurrency:    "usd",
		},
	}
	return &harness{store: store, gateway: gateway, expiry: expiry, clock: clock, svc: svc}
}

func (h *harness) reserve(mentee, service string, start time.Time, key string) (*ReserveResult, error) {
	return h.svc.Reserve(context.Background(), ReserveRequest{
		MenteeID:        mentee,
		MentorID:        mentorID,
		ServiceID:       service,
		StartUTC:        start,
		DurationMinutes: 30,
		IdempotencyKey:  key,
	})
}

func (h *harness) mustHold(t *testing.T, mentee string, start time.Time, key string) *models.Reservation {
	t.Helper()
	result, err := h.reserve(mentee, paidServiceID, start, key)
	if err != nil {
		t.Fatalf("reserve: unexpected error: %v", err)
	}
	if result.Reservation.Status != models.ReservationHeld {
		t.Fatalf("expected held reservation, got %s", result.Reservation.Status)
	}
	return result.Reservation
}

func codeOf(err error) ErrorCode {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func TestReserveFreeServiceConfirmsImmediately(t *testing.T) {
	h := newHarness(t)

	result, err := h.reserve(menteeA, freeServiceID, slot15, "free-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reservation.Status != models.ReservationConfirmed {
		t.Fatalf("expected confirmed, got %s", result.Reservation.Status)
	}
	s := result.Session
	if s == nil {
		t.Fatal("expected session details for a free booking")
	}
	if s.PaymentStatus != models.PaymentStatusFree || s.Price != 0 {
		t.Errorf("expected free session, got status %q price %d", s.PaymentStatus, s.Price)
	}
	if s.MentorName != "Grace" || s.ServiceTitle != "Intro call" {
		t.Errorf("unexpected names %q / %q", s.MentorName, s.ServiceTitle)
	}
	if !s.SessionDate.Equal(slot15) || s.DurationMinutes != 30 {
		t.Errorf("unexpected window %s (%d min)", s.SessionDate, s.DurationMinutes)
	}
	if calls, _ := h.gateway.counts(); calls != 0 {
		t.Errorf("free bookings must not reach the gateway, got %d calls", calls)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestReserveConflictReturnsAlternatives(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reserve(menteeA, freeServiceID, slot15, "a1"); err != nil {
		t.Fatalf("mentee A: unexpected error: %v", err)
	}

	_, err := h.reserve(menteeB, freeServiceID, slot15, "b1")
	if codeOf(err) != CodeTimeConflict {
		t.Fatalf("expected TimeConflict, got %v", err)
	}
	var be *BookingError
	errors.As(err, &be)
	if len(be.Alternatives) == 0 {
		t.Fatal("expected at least one alternative")
	}
	horizon := slot15.AddDate(0, 0, 3)
	for i, alt := range be.Alternatives {
		if alt.StartUTC.Equal(slot15) {
			t.Errorf("alternative %d repeats the requested start", i)
		}
		if alt.StartUTC.After(horizon) {
			t.Errorf("alternative %d at %s is beyond three days", i, alt.StartUTC)
		}
		if i > 0 && !be.Alternatives[i-1].StartUTC.Before(alt.StartUTC) {
			t.Errorf("alternatives not in chronological order at %d", i)
		}
	}
	if first := be.Alternatives[0].StartUTC; !first.Equal(time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("expected the 16:00 slot first, got %s", first)
	}
	if got := len(be.Alternatives); got != 4 {
		t.Errorf("expected 4 open alternatives, got %d", got)
	}

	// The failed attempt is recorded and replays the same outcome.
	failed, err := h.store.GetByIdempotencyKey(context.Background(), menteeB, "b1")
	if err != nil {
		t.Fatalf("failed attempt not recorded: %v", err)
	}
	if failed.Status != models.ReservationCancelled || failed.FailureCode != string(CodeTimeConflict) {
		t.Errorf("expected cancelled/TimeConflict, got %s/%s", failed.Status, failed.FailureCode)
	}
	if _, err := h.reserve(menteeB, freeServiceID, slot15, "b1"); codeOf(err) != CodeTimeConflict {
		t.Errorf("expected replayed TimeConflict, got %v", err)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestReservePaidServiceHoldsWithCheckout(t *testing.T) {
	h := newHarness(t)

	res := h.mustHold(t, menteeA, slot15, "p1")
	if res.CheckoutURL == "" || res.CheckoutHandle == "" {
		t.Fatal("expected a checkout on the held reservation")
	}
	if want := testNow.Add(30 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Errorf("expected expiresAt %s, got %s", want, res.ExpiresAt)
	}
	if res.AmountCents != 5000 || res.Currency != "usd" {
		t.Errorf("expected 5000 usd, got %d %s", res.AmountCents, res.Currency)
	}

	req := h.gateway.request(res.CheckoutHandle)
	if req.AmountCents != 5000 {
		t.Errorf("checkout amount must come from the service, got %d", req.AmountCents)
	}
	if req.IdempotencyKey != CheckoutIdempotencyKey(res.ID, "") {
		t.Errorf("unexpected gateway idempotency key %q", req.IdempotencyKey)
	}
	if at, ok := h.expiry.scheduled[res.ID]; !ok || !at.Equal(res.ExpiresAt) {
		t.Errorf("expected expiry scheduled at %s, got %s (%v)", res.ExpiresAt, at, ok)
	}
}

func TestReserveIdempotentReplay(t *testing.T) {
	h := newHarness(t)

	first := h.mustHold(t, menteeA, slot15, "k1")
	again, err := h.reserve(menteeA, paidServiceID, slot15, "k1")
	if err != nil {
		t.Fatalf("replay: unexpected error: %v", err)
	}
	if !again.Replayed {
		t.Error("expected the second call to be flagged as a replay")
	}
	if again.Reservation.ID != first.ID || again.Reservation.CheckoutURL != first.CheckoutURL {
		t.Errorf("replay returned a different reservation or checkout")
	}
	if _, creates := h.gateway.counts(); creates != 1 {
		t.Errorf("expected exactly one checkout, got %d", creates)
	}
}

func TestReserveGatewayTimeoutThenResubmit(t *testing.T) {
	h := newHarness(t)
	h.svc.Config.GatewayMaxAttempts = 1
	h.gateway.loseResponses = 1

	_, err := h.reserve(menteeA, paidServiceID, slot15, "k1")
	if codeOf(err) != CodeGatewayUnavailable {
		t.Fatalf("expected GatewayUnavailable, got %v", err)
	}
	pending, err := h.store.GetByIdempotencyKey(context.Background(), menteeA, "k1")
	if err != nil || pending.Status != models.ReservationPending {
		t.Fatalf("expected the attempt to stay pending, got %+v (%v)", pending, err)
	}

	result, err := h.reserve(menteeA, paidServiceID, slot15, "k1")
	if err != nil {
		t.Fatalf("resubmit: unexpected error: %v", err)
	}
	if result.Reservation.Status != models.ReservationHeld {
		t.Fatalf("expected held after resubmit, got %s", result.Reservation.Status)
	}
	if result.Reservation.ID != pending.ID {
		t.Errorf("resubmit created a new reservation")
	}
	if got := result.Reservation.CheckoutURL; got != "https://checkout.test/cs_test_1" {
		t.Errorf("expected the original checkout URL, got %q", got)
	}
	calls, creates := h.gateway.counts()
	if creates != 1 || calls != 2 {
		t.Errorf("expected 2 calls and 1 checkout, got %d calls %d checkouts", calls, creates)
	}
}

func TestReserveRetriesTransientGatewayFailures(t *testing.T) {
	h := newHarness(t)
	h.gateway.failCreates = 2

	h.mustHold(t, menteeA, slot15, "k1")
	calls, creates := h.gateway.counts()
	if calls != 3 || creates != 1 {
		t.Errorf("expected 3 calls and 1 checkout, got %d calls %d checkouts", calls, creates)
	}
}

func TestReserveRejectsReusedKeyForDifferentBooking(t *testing.T) {
	h := newHarness(t)
	h.mustHold(t, menteeA, slot15, "k1")

	_, err := h.reserve(menteeA, paidServiceID, slot15.Add(time.Hour), "k1")
	if codeOf(err) != CodeInvalidRequest {
		t.Errorf("expected InvalidRequest, got %v", err)
	}
}

func TestReserveValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ReserveRequest
		want ErrorCode
	}{
		{
			name: "malformed mentee",
			req:  ReserveRequest{MenteeID: "nobody", MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30},
			want: CodeUnauthorized,
		},
		{
			name: "malformed mentor",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: "grace", ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30},
			want: CodeInvalidRequest,
		},
		{
			name: "start in the past",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: testNow.Add(-time.Hour), DurationMinutes: 30},
			want: CodeInvalidRequest,
		},
		{
			name: "zero duration",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15},
			want: CodeInvalidRequest,
		},
		{
			name: "start not on a minute",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15.Add(20 * time.Second), DurationMinutes: 30},
			want: CodeInvalidRequest,
		},
		{
			name: "unknown mentor",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: menteeB, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30},
			want: CodeMentorNotFound,
		},
		{
			name: "unknown mentee",
			req:  ReserveRequest{MenteeID: mentorID, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30},
			want: CodeMenteeNotFound,
		},
		{
			name: "duration differs from service",
			req:  ReserveRequest{MenteeID: menteeA, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 60},
			want: CodeInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Reserve(context.Background(), tt.req)
			if got := codeOf(err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestConcurrentReservationsNeverDoubleBook(t *testing.T) {
	for _, serviceID := range []string{freeServiceID, paidServiceID} {
		t.Run(serviceID, func(t *testing.T) {
			h := newHarness(t)
			const attempts = 10

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				unexpect  []error
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := h.reserve(menteeA, serviceID, slot15, "")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case codeOf(err) != CodeTimeConflict:
						unexpect = append(unexpect, err)
					}
				}()
			}
			wg.Wait()

			if successes != 1 {
				t.Errorf("expected exactly one winner, got %d", successes)
			}
			for _, err := range unexpect {
				t.Errorf("losers must see TimeConflict, got %v", err)
			}
			claims, _ := h.store.FindActiveClaims(context.Background(), mentorID, slot15, slot15.Add(30*time.Minute), h.clock.Now(), "")
			if total := len(claims) + h.store.sessionCount(); total != 1 {
				t.Errorf("expected the window claimed once, got %d claims and %d sessions", len(claims), h.store.sessionCount())
			}
		})
	}
}

func TestWebhookAndPollConvergeOnOneSession(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.pay(res.CheckoutHandle)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		errs <- h.svc.HandleGatewayEvent(ctx, GatewayEvent{ID: "evt_1", Type: EventPaid, CheckoutHandle: res.CheckoutHandle, ReservationID: res.ID})
	}()
	go func() {
		defer wg.Done()
		_, err := h.svc.GetStatus(ctx, menteeA, res.ID)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := h.reserve(menteeA, paidServiceID, slot15, "k1")
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if n := h.store.sessionCount(); n != 1 {
		t.Fatalf("expected exactly one session, got %d", n)
	}
	view, err := h.svc.GetStatus(ctx, menteeA, res.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != models.ReservationConfirmed || view.Session == nil {
		t.Fatalf("expected confirmed with session details, got %s", view.Status)
	}
	if view.Session.PaymentStatus != models.PaymentStatusPaid || view.Session.Price != 5000 {
		t.Errorf("unexpected payment details %q %d", view.Session.PaymentStatus, view.Session.Price)
	}
	if stored := h.store.reservation(res.ID); stored.SessionID != view.Session.SessionID {
		t.Errorf("reservation points at %q, session is %q", stored.SessionID, view.Session.SessionID)
	}
}

func TestPriceIsFixedAtReservation(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")

	h.store.mu.Lock()
	svc := h.store.services[paidServiceID]
	svc.PriceCents = 9999
	h.store.services[paidServiceID] = svc
	h.store.mu.Unlock()

	h.gateway.pay(res.CheckoutHandle)
	if err := h.svc.HandleGatewayEvent(context.Background(), GatewayEvent{ID: "evt_1", Type: EventPaid, CheckoutHandle: res.CheckoutHandle}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	session, err := h.store.GetSessionByReservation(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if session.PricePaidCents != 5000 {
		t.Errorf("expected the reserved price 5000, got %d", session.PricePaidCents)
	}
}

func TestReaperExpiresLapsedHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustHold(t, menteeA, slot15, "k1")

	h.clock.Advance(31 * time.Minute)

	// A lapsed claim stops blocking before the sweep runs.
	report, err := h.svc.CheckConflict(ctx, mentorID, slot15, 30)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Available {
		t.Errorf("expected the window to be open once the claim lapsed, got %s", report.Code)
	}

	n, err := h.svc.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reservation swept, got %d (%v)", n, err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationExpired {
		t.Errorf("expected expired, got %s", got)
	}
	if len(h.gateway.expired) != 1 || h.gateway.expired[0] != res.CheckoutHandle {
		t.Errorf("expected the open checkout to be expired, got %v", h.gateway.expired)
	}

	if _, err := h.reserve(menteeB, paidServiceID, slot15, "b1"); err != nil {
		t.Errorf("slot should be bookable after expiry: %v", err)
	}
}

func TestExpireReservationConfirmsPaymentThatBeatTheWebhook(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.pay(res.CheckoutHandle)
	h.clock.Advance(31 * time.Minute)

	if err := h.svc.ExpireReservation(context.Background(), res.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationConfirmed {
		t.Errorf("expected the paid checkout to win, got %s", got)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestLatePaymentCannotReviveLapsedClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.pay(first.CheckoutHandle)

	// The claim lapses before the webhook lands and before any sweep runs.
	h.clock.Advance(31 * time.Minute)
	second := h.mustHold(t, menteeB, slot15, "k2")

	if err := h.svc.HandleGatewayEvent(ctx, GatewayEvent{ID: "evt_1", Type: EventPaid, CheckoutHandle: first.CheckoutHandle}); err != nil {
		t.Fatalf("a payment that can never be honoured must not ask for redelivery: %v", err)
	}
	lapsed := h.store.reservation(first.ID)
	if lapsed.Status != models.ReservationExpired {
		t.Fatalf("expected the lapsed claim to expire, got %s", lapsed.Status)
	}
	if lapsed.FailureCode != string(CodeTimeConflict) {
		t.Errorf("expected failure code %s, got %q", CodeTimeConflict, lapsed.FailureCode)
	}

	h.gateway.pay(second.CheckoutHandle)
	if err := h.svc.HandleGatewayEvent(ctx, GatewayEvent{ID: "evt_2", Type: EventPaid, CheckoutHandle: second.CheckoutHandle}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got := h.store.reservation(second.ID).Status; got != models.ReservationConfirmed {
		t.Errorf("expected the live claim to be confirmed, got %s", got)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestExpireReservationLeavesLiveClaim(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")

	if err := h.svc.ExpireReservation(context.Background(), res.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationHeld {
		t.Errorf("expected a live claim to stay held, got %s", got)
	}
}

func TestReaperExpiresPaidReservationThatCannotBeBooked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.pay(res.CheckoutHandle)

	h.store.mu.Lock()
	h.store.mentors[mentorID] = models.Mentor{ID: mentorID, Name: "Grace", Active: false}
	h.store.mu.Unlock()

	if err := h.svc.HandleGatewayEvent(ctx, GatewayEvent{ID: "evt_1", Type: EventPaid, CheckoutHandle: res.CheckoutHandle}); err != nil {
		t.Fatalf("a booking that can never succeed must not ask for redelivery: %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationPaid {
		t.Fatalf("expected paid, got %s", got)
	}

	h.clock.Advance(11 * time.Minute)
	if _, err := h.svc.SweepExpired(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	stored := h.store.reservation(res.ID)
	if stored.Status != models.ReservationExpired || stored.FailureCode != string(CodeMentorInactive) {
		t.Errorf("expected expired/MentorInactive, got %s/%s", stored.Status, stored.FailureCode)
	}
	if n := h.store.sessionCount(); n != 0 {
		t.Errorf("expected no session, got %d", n)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.mustHold(t, menteeA, slot15, "k1")

	if _, err := h.svc.Cancel(ctx, menteeB, res.ID); codeOf(err) != CodeReservationNotFound {
		t.Errorf("another mentee must not see the reservation, got %v", err)
	}

	view, err := h.svc.Cancel(ctx, menteeA, res.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if view.Status != models.ReservationCancelled {
		t.Errorf("expected cancelled, got %s", view.Status)
	}
	if len(h.gateway.expired) != 1 {
		t.Errorf("expected the checkout to be closed, got %v", h.gateway.expired)
	}
	report, err := h.svc.CheckConflict(ctx, mentorID, slot15, 30)
	if err != nil || !report.Available {
		t.Errorf("expected the window to be free after cancel, got %+v (%v)", report, err)
	}

	if _, err := h.svc.Cancel(ctx, menteeA, res.ID); codeOf(err) != CodeInvalidStateTransition {
		t.Errorf("expected InvalidStateTransition on a second cancel, got %v", err)
	}
}

func TestCancelAfterPaymentKeepsBooking(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.pay(res.CheckoutHandle)

	_, err := h.svc.Cancel(context.Background(), menteeA, res.ID)
	if codeOf(err) != CodeInvalidStateTransition {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationConfirmed {
		t.Errorf("expected the payment to win, got %s", got)
	}
}

func TestCancelClosesCheckoutBeforeCancelling(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")
	// The mentee completes payment while the cancel is in flight.
	h.gateway.payOnExpire = true

	_, err := h.svc.Cancel(context.Background(), menteeA, res.ID)
	if codeOf(err) != CodeInvalidStateTransition {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationConfirmed {
		t.Errorf("expected the captured payment to be honoured, got %s", got)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestCancelKeepsReservationWhenCheckoutCannotBeClosed(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")
	h.gateway.failExpires = h.svc.Config.GatewayMaxAttempts

	_, err := h.svc.Cancel(context.Background(), menteeA, res.ID)
	if codeOf(err) != CodeGatewayUnavailable {
		t.Fatalf("expected GatewayUnavailable, got %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationHeld {
		t.Errorf("expected the reservation to stay held, got %s", got)
	}

	// A retry once the gateway answers goes through.
	if _, err := h.svc.Cancel(context.Background(), menteeA, res.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationCancelled {
		t.Errorf("expected cancelled, got %s", got)
	}
}

func TestMalformedIDsAreRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.CheckConflict(ctx, "grace", slot15, 30); codeOf(err) != CodeInvalidRequest {
		t.Errorf("CheckConflict: expected InvalidRequest, got %v", err)
	}
	if _, err := h.svc.GetStatus(ctx, menteeA, "r1"); codeOf(err) != CodeInvalidRequest {
		t.Errorf("GetStatus: expected InvalidRequest, got %v", err)
	}
	if _, err := h.svc.Cancel(ctx, menteeA, "r1"); codeOf(err) != CodeInvalidRequest {
		t.Errorf("Cancel: expected InvalidRequest, got %v", err)
	}
}

func TestHandleGatewayEventUnknownCheckout(t *testing.T) {
	h := newHarness(t)
	err := h.svc.HandleGatewayEvent(context.Background(), GatewayEvent{ID: "evt_1", Type: EventPaid, CheckoutHandle: "cs_unknown"})
	if err != nil {
		t.Errorf("unknown checkouts must be acknowledged, got %v", err)
	}
}

func TestHandleGatewayEventExpired(t *testing.T) {
	h := newHarness(t)
	res := h.mustHold(t, menteeA, slot15, "k1")

	err := h.svc.HandleGatewayEvent(context.Background(), GatewayEvent{ID: "evt_2", Type: EventExpired, CheckoutHandle: res.CheckoutHandle})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got := h.store.reservation(res.ID).Status; got != models.ReservationExpired {
		t.Errorf("expected expired, got %s", got)
	}
}

func TestGetStatusServesTerminalViewsFromCache(t *testing.T) {
	h := newHarness(t)
	cache := newMemCache()
	h.svc.Cache = cache
	ctx := context.Background()

	result, err := h.reserve(menteeA, freeServiceID, slot15, "k1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	id := result.Reservation.ID
	if _, err := h.svc.GetStatus(ctx, menteeA, id); err != nil {
		t.Fatalf("status: %v", err)
	}

	h.store.mu.Lock()
	delete(h.store.reservations, id)
	h.store.mu.Unlock()

	view, err := h.svc.GetStatus(ctx, menteeA, id)
	if err != nil {
		t.Fatalf("expected a cached view, got %v", err)
	}
	if view.Status != models.ReservationConfirmed || view.Session == nil {
		t.Errorf("cached view lost details: %+v", view)
	}
	if _, err := h.svc.GetStatus(ctx, menteeB, id); codeOf(err) != CodeReservationNotFound {
		t.Errorf("cache must still enforce ownership, got %v", err)
	}
}

func TestGetStatusByCheckout(t *testing.T) {
	h := newHarness(t)
	h.svc.Cache = newMemCache()
	ctx := context.Background()
	res := h.mustHold(t, menteeA, slot15, "k1")

	view, err := h.svc.GetStatusByCheckout(ctx, menteeA, res.CheckoutHandle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.ReservationID != res.ID || view.Status != models.ReservationHeld {
		t.Errorf("unexpected view %+v", view)
	}
	if _, err := h.svc.GetStatusByCheckout(ctx, menteeB, res.CheckoutHandle); codeOf(err) != CodeReservationNotFound {
		t.Errorf("expected ReservationNotFound for another mentee, got %v", err)
	}
}

func TestCheckConflictCodes(t *testing.T) {
	h := newHarness(t)
	engine := h.svc.Engine
	ctx := context.Background()

	if _, err := h.reserve(menteeA, freeServiceID, slot15, "k1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	tests := []struct {
		name  string
		start time.Time
		want  string
	}{
		{"open slot", time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC), ""},
		{"booked slot", slot15, string(CodeTimeConflict)},
		{"outside the grid", time.Date(2025, 3, 1, 15, 15, 0, 0, time.UTC), string(CodeSlotUnavailable)},
		{"no availability that day", time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), string(CodeNoAvailability)},
		{"unavailable slot only", time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), string(CodeNoAvailability)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.CheckConflict(ctx, mentorID, tt.start, 30, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Code != tt.want || result.Available != (tt.want == "") {
				t.Errorf("expected %q, got %q (available=%v)", tt.want, result.Code, result.Available)
			}
		})
	}
}

func TestSuggestAlternativesOrderingAndLimit(t *testing.T) {
	h := newHarness(t)
	engine := h.svc.Engine
	engine.SuggestionLimit = 2
	ctx := context.Background()

	// Occupy 16:00 so the generator has to skip it.
	if _, err := h.reserve(menteeA, freeServiceID, time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC), "k1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got := engine.SuggestAlternatives(ctx, mentorID, slot15, 30)
	want := []time.Time{
		time.Date(2025, 3, 1, 16, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].StartUTC.Equal(want[i]) {
			t.Errorf("suggestion %d: expected %s, got %s", i, want[i], got[i].StartUTC)
		}
		if got[i].EndUTC.Sub(got[i].StartUTC) != 30*time.Minute {
			t.Errorf("suggestion %d has the wrong length", i)
		}
	}
}

func TestBookAtomically(t *testing.T) {
	h := newHarness(t)
	engine := h.svc.Engine
	ctx := context.Background()

	_, err := engine.BookAtomically(ctx, AtomicBookingRequest{
		MenteeID: menteeA, MentorID: mentorID, ServiceID: paidServiceID, StartUTC: slot15, DurationMinutes: 30,
	})
	if codeOf(err) != CodeInvalidRequest {
		t.Errorf("paid services need a reservation, got %v", err)
	}

	session, err := engine.BookAtomically(ctx, AtomicBookingRequest{
		MenteeID: menteeA, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("free booking: %v", err)
	}
	if session.Status != models.SessionConfirmed || session.PaymentStatus != models.PaymentStatusFree {
		t.Errorf("unexpected session %+v", session)
	}

	_, err = engine.BookAtomically(ctx, AtomicBookingRequest{
		MenteeID: menteeB, MentorID: mentorID, ServiceID: freeServiceID, StartUTC: slot15, DurationMinutes: 30,
	})
	var be *BookingError
	if !errors.As(err, &be) || be.Code != CodeTimeConflict || len(be.Alternatives) == 0 {
		t.Errorf("expected TimeConflict with alternatives, got %v", err)
	}
}

func TestBookAtomicallyReturnsExistingSessionForConfirmedReservation(t *testing.T) {
	h := newHarness(t)
	result, err := h.reserve(menteeA, freeServiceID, slot15, "k1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	session, err := h.svc.Engine.BookAtomically(context.Background(), requestFromReservation(result.Reservation))
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if session.ID != result.Session.SessionID {
		t.Errorf("expected the existing session %s, got %s", result.Session.SessionID, session.ID)
	}
	if n := h.store.sessionCount(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}
