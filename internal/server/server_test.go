package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/internal/server"
	"github.com/xxgiasonxx/voice-ordering-system/internal/session"
	"github.com/xxgiasonxx/voice-ordering-system/internal/stream"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
	menumock "github.com/xxgiasonxx/voice-ordering-system/pkg/menu/mock"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr"
	asrmock "github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr/mock"
	genmock "github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator/mock"
	storemock "github.com/xxgiasonxx/voice-ordering-system/pkg/store/mock"
)

// testFernetKey is 32 zero bytes, base64url encoded.
const testFernetKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

type seqIDs struct {
	orders int
	lines  int
}

func (s *seqIDs) OrderID(time.Time) string {
	s.orders++
	return fmt.Sprintf("ORD%04d", s.orders)
}

func (s *seqIDs) LineID(itemID string) string {
	s.lines++
	return fmt.Sprintf("%s%04d", itemID, s.lines)
}

func intPtr(v int) *int { return &v }

func reply(sys, cus string) string {
	return "```sys\n" + sys + "\n```\n```cus\n" + cus + "\n```\n"
}

type fixture struct {
	ts      *httptest.Server
	gen     *genmock.Provider
	asrSess *asrmock.Session
}

func newFixture(t *testing.T, gen *genmock.Provider) *fixture {
	t.Helper()

	st := storemock.New()
	svc, err := session.New(st, []byte("test-secret"), testFernetKey)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	resolver := &menumock.Resolver{Entries: map[string]menu.Entry{
		"1": {ID: "1", Class: "台式蛋餅", Name: "原味蛋餅", Price: intPtr(30)},
	}}
	eng := order.NewEngine(resolver, &seqIDs{})

	asrSess := &asrmock.Session{
		InterimsCh: make(chan asr.Transcript, 16),
		FinalsCh:   make(chan asr.Transcript, 16),
	}
	orch := stream.New(svc, eng, &asrmock.Provider{Session: asrSess}, gen)

	srv := server.New(svc, orch)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &fixture{ts: ts, gen: gen, asrSess: asrSess}
}

// obtainSession fetches a token and returns the session cookie.
func (f *fixture) obtainSession(t *testing.T) *http.Cookie {
	t.Helper()
	resp, err := http.Get(f.ts.URL + "/auth/token")
	if err != nil {
		t.Fatalf("GET /auth/token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /auth/token status = %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == server.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie in token response")
	return nil
}

func (f *fixture) do(t *testing.T, method, path string, cookie *http.Cookie, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTokenIssueIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})

	cookie := f.obtainSession(t)

	// Presenting the cookie again must return the same credential.
	resp := f.do(t, http.MethodGet, "/auth/token", cookie, nil)
	var tok struct {
		Token   string `json:"token"`
		Created bool   `json:"created"`
	}
	decodeBody(t, resp, &tok)
	if tok.Created {
		t.Error("second token call reported a fresh session")
	}
	if tok.Token != cookie.Value {
		t.Error("second token call re-issued the credential")
	}
}

func TestAuthMe(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})

	resp, err := http.Get(f.ts.URL + "/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated /auth/me status = %d, want 401", resp.StatusCode)
	}

	cookie := f.obtainSession(t)
	resp = f.do(t, http.MethodGet, "/auth/me", cookie, nil)
	var me struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, resp, &me)
	if me.SessionID == "" {
		t.Error("authenticated /auth/me returned no session id")
	}
}

func TestOrderTurnEndpoint(t *testing.T) {
	t.Parallel()
	gen := &genmock.Provider{Responses: []string{
		reply("intent: ongoing\n+ 1 1 無", "好的，原味蛋餅一份。"),
	}}
	f := newFixture(t, gen)
	cookie := f.obtainSession(t)

	resp := f.do(t, http.MethodPost, "/order", cookie, map[string]string{"query": "我要一份原味蛋餅"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /order status = %d", resp.StatusCode)
	}
	var turn struct {
		Response string         `json:"response"`
		Order    order.Document `json:"order"`
	}
	decodeBody(t, resp, &turn)
	if turn.Response != "好的，原味蛋餅一份。" {
		t.Errorf("response = %q", turn.Response)
	}
	if turn.Order.TotalPrice != 30 {
		t.Errorf("total price = %d, want 30", turn.Order.TotalPrice)
	}

	// The new state must be readable back.
	resp = f.do(t, http.MethodGet, "/order/state", cookie, nil)
	var doc order.Document
	decodeBody(t, resp, &doc)
	if doc.TotalPrice != 30 || len(doc.Items) != 1 {
		t.Errorf("persisted state = %+v, want one line totalling 30", doc)
	}
}

func TestOrderTurnRequiresAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})

	resp := f.do(t, http.MethodPost, "/order", nil, map[string]string{"query": "蛋餅"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("POST /order without cookie status = %d, want 401", resp.StatusCode)
	}
}

func TestOrderTurnRejectsEmptyQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})
	cookie := f.obtainSession(t)

	resp := f.do(t, http.MethodPost, "/order", cookie, map[string]string{"query": "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", resp.StatusCode)
	}
}

func TestOrderReset(t *testing.T) {
	t.Parallel()
	gen := &genmock.Provider{Responses: []string{
		reply("+ 1 1 無", "好的。"),
	}}
	f := newFixture(t, gen)
	cookie := f.obtainSession(t)

	resp := f.do(t, http.MethodPost, "/order", cookie, map[string]string{"query": "蛋餅一份"})
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/order/reset", cookie, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /order/reset status = %d", resp.StatusCode)
	}

	// State re-seeds empty on next read, cookie stays valid.
	resp = f.do(t, http.MethodGet, "/order/state", cookie, nil)
	var doc order.Document
	decodeBody(t, resp, &doc)
	if doc.TotalPrice != 0 || len(doc.Items) != 0 {
		t.Errorf("state after reset = %+v, want empty order", doc)
	}
}

func TestOrderPayment(t *testing.T) {
	t.Parallel()
	gen := &genmock.Provider{Responses: []string{
		reply("+ 1 1 無", "好的。"),
	}}
	f := newFixture(t, gen)
	cookie := f.obtainSession(t)

	resp := f.do(t, http.MethodPost, "/order", cookie, map[string]string{"query": "蛋餅一份"})
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/order/payment", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /order/payment status = %d", resp.StatusCode)
	}
	var doc order.Document
	decodeBody(t, resp, &doc)
	if doc.Payment.Status != order.PaymentPaid {
		t.Errorf("payment status = %q, want %q", doc.Payment.Status, order.PaymentPaid)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})

	resp, err := http.Get(f.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestVoiceWebSocket(t *testing.T) {
	t.Parallel()
	gen := &genmock.Provider{Responses: []string{
		reply("intent: end", "謝謝光臨！"),
	}}
	f := newFixture(t, gen)
	cookie := f.obtainSession(t)

	f.asrSess.FinalsCh <- asr.Transcript{Text: "就這樣，謝謝", IsFinal: true}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/voice?token=" + url.QueryEscape(cookie.Value)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.CloseNow()

	seen := map[stream.EventType]bool{}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("close status = %v, want normal closure", err)
			}
			break
		}
		var ev stream.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad event payload %q: %v", data, err)
		}
		seen[ev.Type] = true
	}

	for _, want := range []stream.EventType{
		stream.EventSuccess, stream.EventTranscript, stream.EventReply,
		stream.EventOrder, stream.EventEnd, stream.EventClose,
	} {
		if !seen[want] {
			t.Errorf("missing %q event", want)
		}
	}
}

func TestVoiceWebSocketRejectsBadToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &genmock.Provider{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/voice?token=bogus"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.CloseNow()

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
				t.Fatalf("close status = %v, want policy violation", err)
			}
			return
		}
	}
}
