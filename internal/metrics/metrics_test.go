package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if itemsTotal == nil || commentPagesTotal == nil || storageOperationsTotal == nil ||
		fetchDurationSeconds == nil || listingPagesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(storageOperationsTotal.WithLabelValues("redis", "insert", "error"))
	ObserveStorage("redis", "insert", errors.New("boom"))
	after := testutil.ToFloat64(storageOperationsTotal.WithLabelValues("redis", "insert", "error"))
	if after-before != 1 {
		t.Fatalf("expected storage error counter to grow by 1, got %f", after-before)
	}

	before = testutil.ToFloat64(checkpointItemsTotal.WithLabelValues("write"))
	ObserveCheckpoint("write", 3)
	after = testutil.ToFloat64(checkpointItemsTotal.WithLabelValues("write"))
	if after-before != 3 {
		t.Fatalf("expected checkpoint counter to grow by 3, got %f", after-before)
	}

	beforeOK := testutil.ToFloat64(itemsTotal.WithLabelValues("ok"))
	ObserveItem(nil)
	if got := testutil.ToFloat64(itemsTotal.WithLabelValues("ok")) - beforeOK; got != 1 {
		t.Fatalf("expected ok item counter to grow by 1, got %f", got)
	}

	ObserveCommentPage(nil)
	ObserveListingPage(errors.New("down"))
	ObserveFetch("comment", "ok", 20*time.Millisecond)
	ObserveRateLimitDelay("aur.archlinux.org", 150*time.Millisecond)
	if got := testutil.CollectAndCount(rateLimitDelaySeconds); got == 0 {
		t.Fatal("expected a rate limit delay series")
	}
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	Init()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	if after-before != 1 {
		t.Fatalf("expected request counter to grow by 1, got %f", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveItem(errors.New("dropped"))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "aurcrawl_items_total") {
		t.Fatalf("expected metrics output to include aurcrawl_items_total")
	}
}
