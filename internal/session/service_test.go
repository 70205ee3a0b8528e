package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/internal/session"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/store"
	storemock "github.com/xxgiasonxx/voice-ordering-system/pkg/store/mock"
)

// testFernetKey is a fixed base64 Fernet key (32 zero bytes).
const testFernetKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*session.Service, *storemock.Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)}
	st := storemock.New()
	st.Now = c.now

	svc, err := session.New(st, []byte("test-secret"), testFernetKey,
		session.WithClock(c.now),
		session.WithSessionIDs(func() string { return "sess-1" }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, st, c
}

func TestCreateSeedsSessionState(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	token, created, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created || token == "" {
		t.Fatalf("created=%v token=%q", created, token)
	}

	for _, key := range []string{"sess-1", store.OrderStateKey("sess-1"), store.ConversationKey("sess-1")} {
		ok, err := st.Exists(ctx, key)
		if err != nil || !ok {
			t.Errorf("key %q not seeded (ok=%v err=%v)", key, ok, err)
		}
	}

	id, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != "sess-1" {
		t.Errorf("session id = %q, want sess-1", id)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	// Simulate the order state lapsing while the session stays valid.
	st.Expire(store.OrderStateKey("sess-1"))

	again, created, err := svc.Create(ctx, token)
	if err != nil {
		t.Fatalf("Create with existing token: %v", err)
	}
	if created {
		t.Error("created = true, want false for existing token")
	}
	if again != token {
		t.Error("existing token was replaced")
	}

	// Only the missing key is re-seeded; the conversation keeps its
	// greeting.
	if ok, _ := st.Exists(ctx, store.OrderStateKey("sess-1")); !ok {
		t.Error("order state not re-seeded")
	}
	entries, err := svc.Conversation(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Response != session.Greeting {
		t.Errorf("conversation = %+v", entries)
	}
}

func TestCreateRejectsGarbageToken(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	_, _, err := svc.Create(context.Background(), "not-a-token")
	if !errors.Is(err, session.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpiredJWT(t *testing.T) {
	t.Parallel()

	svc, _, c := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	c.advance(session.DefaultTTL + time.Minute)

	_, err = svc.Verify(ctx, token)
	if !errors.Is(err, session.ErrExpiredSession) {
		t.Errorf("err = %v, want ErrExpiredSession", err)
	}
}

func TestVerifyLapsedStoreEntry(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	// JWT still valid but the store no longer knows the session.
	st.Expire("sess-1")

	_, err = svc.Verify(ctx, token)
	if !errors.Is(err, session.ErrExpiredSession) {
		t.Errorf("err = %v, want ErrExpiredSession", err)
	}
}

func TestOrderStateRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}

	doc, err := svc.OrderState(ctx, "sess-1")
	if err != nil {
		t.Fatalf("OrderState: %v", err)
	}
	if doc.Status != order.StatusStart {
		t.Errorf("Status = %q", doc.Status)
	}

	doc.TotalPrice = 65
	doc.Status = "order"
	if err := svc.SaveOrderState(ctx, "sess-1", doc); err != nil {
		t.Fatalf("SaveOrderState: %v", err)
	}

	got, err := svc.OrderState(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalPrice != 65 || got.Status != "order" {
		t.Errorf("reloaded doc = %+v", got)
	}
}

func TestAppendConversation(t *testing.T) {
	t.Parallel()

	svc, _, c := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}

	err := svc.AppendConversation(ctx, "sess-1",
		session.ConversationEntry{Type: session.EntryUser, Response: "我要一份蛋餅", Time: c.now()},
		session.ConversationEntry{Type: session.EntryLLM, Response: "好喔！", Time: c.now()},
	)
	if err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}

	entries, err := svc.Conversation(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (greeting + 2)", len(entries))
	}
	if entries[0].Response != session.Greeting {
		t.Errorf("first entry = %+v, want greeting", entries[0])
	}
	if entries[1].Type != session.EntryUser || entries[2].Type != session.EntryLLM {
		t.Errorf("entry types = %q, %q", entries[1].Type, entries[2].Type)
	}
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reset(ctx, "sess-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if ok, _ := st.Exists(ctx, store.OrderStateKey("sess-1")); ok {
		t.Error("order state survived reset")
	}
	if ok, _ := st.Exists(ctx, store.ConversationKey("sess-1")); ok {
		t.Error("conversation survived reset")
	}
	// The session key itself stays.
	if ok, _ := st.Exists(ctx, "sess-1"); !ok {
		t.Error("session key was deleted by reset")
	}
}

func TestSubmitPayment(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.Create(ctx, ""); err != nil {
		t.Fatal(err)
	}

	doc, err := svc.SubmitPayment(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}
	if doc.Payment.Status != order.PaymentPaid {
		t.Errorf("payment status = %q, want paid", doc.Payment.Status)
	}
	if ok, _ := st.Exists(ctx, store.OrderStateKey("sess-1")); ok {
		t.Error("order state survived payment")
	}
}

func TestStoreOutageSurfaces(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t)
	st.Err = errors.New("connection refused")

	if _, _, err := svc.Create(context.Background(), ""); err == nil {
		t.Error("Create succeeded during store outage")
	}
}
