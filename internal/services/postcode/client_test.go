package postcode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockpoint/internal/logger"
)

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"SW1A 1AA":  true,
		"90210":     true,
		"1000-123":  true,
		"ab":        false,
		"":          false,
		"bad;input": false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Fatalf("Valid(%q): got %v want %v", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/90210/json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"postcode":"90210","city":"Beverly Hills","state":"CA"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, logger.NewNop())

	addr := c.Lookup(context.Background(), "90210")
	if addr == nil {
		t.Fatalf("Lookup returned nil for a known postcode")
	}
	if addr.City != "Beverly Hills" || addr.Postcode != "90210" {
		t.Fatalf("address mismatch: %+v", addr)
	}
}

func TestLookupFailuresAreSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, logger.NewNop())
	ctx := context.Background()

	if addr := c.Lookup(ctx, "90210"); addr != nil {
		t.Fatalf("server error must read as no data, got %+v", addr)
	}
	if addr := c.Lookup(ctx, "x"); addr != nil {
		t.Fatalf("invalid postcode must short-circuit, got %+v", addr)
	}

	unconfigured := New("", time.Second, logger.NewNop())
	if addr := unconfigured.Lookup(ctx, "90210"); addr != nil {
		t.Fatalf("unconfigured client must return nil, got %+v", addr)
	}
}
