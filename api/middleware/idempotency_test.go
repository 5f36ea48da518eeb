package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func deductRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/deduct", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, deductRequest("", `{"foo":"bar"}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, DeductReplayTTL, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, deductRequest("abc", `{"foo":"bar"}`))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}
	if resp.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked as replayed")
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, deductRequest("abc", `{"foo":"bar"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != DeductReplayTTL {
			t.Fatalf("%s stored for %v, expected %v", key, ttl, DeductReplayTTL)
		}
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), deductRequest("xyz", `{"foo":"bar"}`))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, deductRequest("xyz", `{"foo":"diff"}`))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyMiddlewareRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	var inner *httptest.ResponseRecorder
	var calls int
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			inner = httptest.NewRecorder()
			mw(handler).ServeHTTP(inner, deductRequest("dup", `{"foo":"bar"}`))
		}
		w.WriteHeader(http.StatusOK)
	})

	outer := httptest.NewRecorder()
	mw(handler).ServeHTTP(outer, deductRequest("dup", `{"foo":"bar"}`))

	if outer.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", outer.Code)
	}
	if calls != 1 {
		t.Fatalf("duplicate reached the handler")
	}
	if inner.Code != http.StatusConflict {
		t.Fatalf("expected 409 for the duplicate, got %d", inner.Code)
	}
	if code := errorCode(t, inner); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeConflict, code)
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, deductRequest("retry", `{}`))
	if first.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released, got %v", store.data)
	}

	second := httptest.NewRecorder()
	mw(handler).ServeHTTP(second, deductRequest("retry", `{}`))
	if second.Code != http.StatusOK || calls != 2 {
		t.Fatalf("expected retry to run the handler, got %d after %d calls", second.Code, calls)
	}
}

func TestIdempotencyMiddlewareReplaysClientErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, deductRequest("short", `{}`))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422 got %d", i, rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected the rejection to be replayed, handler ran %d times", calls)
	}
}

func TestIdempotencyMiddlewareScopesKeysPerUser(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, StandardReplayTTL, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for _, user := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/reserve/cart", strings.NewReader(`{"holder_id":"cart-1"}`))
		req = req.WithContext(WithUserID(req.Context(), user))
		req.Header.Set("Idempotency-Key", "same")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", calls)
	}
	if len(store.data) != 2 {
		t.Fatalf("expected two stored records, got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareWithoutStorePassesThrough(t *testing.T) {
	mw := Idempotency(nil, StandardReplayTTL, nil)
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, deductRequest("", `{}`))
	if !called || resp.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", resp.Code)
	}
}
