package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "username already taken")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "username already taken" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a","admin":true}`))
	if err := DecodeJSON(r, &v); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestReadJSON_TooLarge(t *testing.T) {
	var v map[string]any
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"`+strings.Repeat("a", 64)+`"}`))
	r.Body = http.MaxBytesReader(w, r.Body, 16)

	if ReadJSON(w, r, &v) {
		t.Fatal("ReadJSON should fail")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestNewSessions_ShortSecret(t *testing.T) {
	if _, err := NewSessions(SessionConfig{Secret: "short"}); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestSessions_RoundTrip(t *testing.T) {
	s, err := NewSessions(SessionConfig{Name: "test", Secret: testSecret, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	if _, ok := s.UserID(r); ok {
		t.Fatal("empty request should carry no user")
	}

	id := uuid.New()
	w := httptest.NewRecorder()
	if err := s.SetUserID(w, r, id); err != nil {
		t.Fatalf("SetUserID: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(cookies[0])
	got, ok := s.UserID(r2)
	if !ok || got != id {
		t.Errorf("UserID = %v, %v; want %v", got, ok, id)
	}

	w2 := httptest.NewRecorder()
	if err := s.Clear(w2, r2); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	cleared := w2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("Clear should expire the cookie, got %+v", cleared)
	}
}

func TestSessions_TamperedCookie(t *testing.T) {
	s, _ := NewSessions(SessionConfig{Name: "test", Secret: testSecret})
	other, _ := NewSessions(SessionConfig{Name: "test", Secret: strings.Repeat("x", 32)})

	w := httptest.NewRecorder()
	if err := other.SetUserID(w, httptest.NewRequest("GET", "/", nil), uuid.New()); err != nil {
		t.Fatalf("SetUserID: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(w.Result().Cookies()[0])
	if _, ok := s.UserID(r); ok {
		t.Error("cookie signed with another key must be ignored")
	}
}
