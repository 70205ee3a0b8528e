package observe_test

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/xxgiasonxx/voice-ordering-system/internal/observe"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// hijackRecorder pairs httptest.ResponseRecorder with a working Hijack,
// standing in for the real HTTP/1.1 connection a WebSocket upgrade
// takes over.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	t.Parallel()

	h := observe.Middleware(newTestMetrics(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/order/state", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestMiddlewarePreservesHijack(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	hijacked := false
	h := observe.Middleware(newTestMetrics(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("Hijack through middleware: %v", err)
			return
		}
		if conn != server {
			t.Error("Hijack returned a different connection")
		}
		hijacked = true
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server}
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/voice", nil))

	if !hijacked {
		t.Fatal("handler never reached the underlying connection")
	}
}
