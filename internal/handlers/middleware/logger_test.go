package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

type record struct {
	level string
	msg   string
	attrs map[string]any
}

type recordingLogger struct {
	records []record
}

func (l *recordingLogger) add(level string, msg string, args []any) {
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		attrs[args[i].(string)] = args[i+1]
	}
	l.records = append(l.records, record{level: level, msg: msg, attrs: attrs})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		size    int
		level   string
	}{
		{
			name: "payment required",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = w.Write([]byte(`{"error":"insufficient_funds"}`))
			},
			status: http.StatusPaymentRequired,
			size:   30,
			level:  "info",
		},
		{
			name: "implicit ok",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("hi"))
			},
			status: http.StatusOK,
			size:   2,
			level:  "info",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
			level:  "error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := &recordingLogger{}
			h := chimw.RequestID(LoggerMiddleware(l)(tc.handler))
			w := httptest.NewRecorder()

			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/wallet/topup?x=1", nil))

			require.Equal(t, tc.status, w.Code)
			require.Len(t, l.records, 1)
			rec := l.records[0]
			require.Equal(t, tc.level, rec.level)
			require.Equal(t, "http request", rec.msg)
			require.Equal(t, http.MethodPost, rec.attrs["method"])
			require.Equal(t, "/api/wallet/topup?x=1", rec.attrs["uri"])
			require.Equal(t, tc.status, rec.attrs["status"])
			require.Equal(t, tc.size, rec.attrs["size"])
			require.Contains(t, rec.attrs, "duration")
			require.NotEmpty(t, rec.attrs["request_id"], "request id should be set by chi middleware")
		})
	}
}

type observerFunc func(string, int)

func (f observerFunc) ObserveRequest(method string, status int) { f(method, status) }

func TestMetricsMiddleware(t *testing.T) {
	var method string
	var status int

	middleware := MetricsMiddleware(observerFunc(func(m string, s int) {
		method, status = m, s
	}))
	h := middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/rewards/x/claim", nil))

	require.Equal(t, http.MethodPost, method)
	require.Equal(t, http.StatusGone, status)
}
