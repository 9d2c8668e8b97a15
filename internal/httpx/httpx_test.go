package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
)

type sample struct {
	Rating    int    `json:"rating" validate:"min=1,max=5"`
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":4,"booking_id":"`+uuid.NewString()+`"}`))
		var s sample
		if err := Decode(r, &s); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if s.Rating != 4 {
			t.Errorf("rating = %d", s.Rating)
		}
	})
	t.Run("validation failure names the field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":9,"booking_id":"x"}`))
		var s sample
		err := Decode(r, &s)
		var e *apperr.Error
		if !errors.Is(err, apperr.ErrValidation) || !errors.As(err, &e) {
			t.Fatalf("expected VALIDATION_ERROR, got %v", err)
		}
		fields := e.Details.(map[string]any)["fields"].(map[string]string)
		if fields["rating"] != "max" || fields["booking_id"] != "uuid" {
			t.Errorf("fields = %v", fields)
		}
	})

	bad := map[string]string{
		"unknown field": `{"rating":4,"nope":1}`,
		"empty body":    "",
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			var s sample
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			if err := Decode(r, &s); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/bids/x/accept", nil)
	WriteError(rec, r, slog.Default(), apperr.New(apperr.CodeBookingExists, "task already has an active booking"))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "BOOKING_EXISTS" || body.Error.Message != "task already has an active booking" {
		t.Errorf("unexpected envelope %+v", body.Error)
	}
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, r, slog.Default(), errors.New("pq: secret detail"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "secret detail") {
		t.Error("internal cause leaked into the response")
	}
	if !strings.Contains(body, "INTERNAL_ERROR") {
		t.Errorf("body = %s", body)
	}
}

func TestPageFromQuery(t *testing.T) {
	cursor := uuid.New()
	r := httptest.NewRequest(http.MethodGet, "/?cursor="+cursor.String()+"&limit=5", nil)
	p, err := PageFromQuery(r)
	if err != nil {
		t.Fatalf("PageFromQuery: %v", err)
	}
	if p.Cursor == nil || *p.Cursor != cursor || p.Limit != 5 {
		t.Errorf("page = %+v", p)
	}

	for _, q := range []string{"/?limit=-2", "/?cursor=nope"} {
		if _, err := PageFromQuery(httptest.NewRequest(http.MethodGet, q, nil)); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected VALIDATION_ERROR, got %v", q, err)
		}
	}
}
