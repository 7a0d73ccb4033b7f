package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	logx "coderelay/pkg/logx"
)

func newTestServer(cfg Config, health HealthFunc) (*httptest.Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "coderelay_test_total", Help: "test"}).Inc()
	s := New(cfg, reg, health, logx.Nop())
	return httptest.NewServer(s.Handler()), reg
}

func get(t *testing.T, url string, hdr map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthzAndMetrics(t *testing.T) {
	ts, _ := newTestServer(Config{}, nil)
	defer ts.Close()

	if code, body := get(t, ts.URL+"/healthz", nil); code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q", code, body)
	}
	code, body := get(t, ts.URL+"/metrics", nil)
	if code != http.StatusOK || !strings.Contains(body, "coderelay_test_total 1") {
		t.Fatalf("metrics = %d %q", code, body)
	}
	if code, _ := get(t, ts.URL+"/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("pprof should be disabled, got %d", code)
	}
}

func TestHealthzReportsFailure(t *testing.T) {
	ts, _ := newTestServer(Config{}, func() error { return errors.New("store closed") })
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz", nil)
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "store closed") {
		t.Fatalf("healthz = %d %q", code, body)
	}
}

func TestTokenAuth(t *testing.T) {
	ts, _ := newTestServer(Config{Token: "s3cret", Pprof: true}, nil)
	defer ts.Close()

	cases := []struct {
		name string
		url  string
		hdr  map[string]string
		want int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bad query", "/healthz?token=nope", nil, http.StatusUnauthorized},
		{"good query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"bad bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"good bearer", "/metrics", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"pprof", "/debug/pprof/", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := get(t, ts.URL+tc.url, tc.hdr); code != tc.want {
				t.Fatalf("status = %d, want %d", code, tc.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:9090": true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.1:9090":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStartStopServes(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, prometheus.NewRegistry(), nil, logx.Nop())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatalf("server did not bind")
	}
	if code, _ := get(t, "http://"+addr+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatalf("listener still set after Stop")
	}
}

func TestInsecureBindRefused(t *testing.T) {
	s := New(Config{Addr: "0.0.0.0:0"}, prometheus.NewRegistry(), nil, logx.Nop())
	if err := s.serveOnce(context.Background()); err == nil {
		t.Fatalf("expected refusal for non-loopback bind without token")
	}
}
