// Package httpx holds the JSON request and response helpers every handler
// shares, including the uniform error envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names so error details match
// what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorEnvelope struct {
	Error *apperr.Error `json:"error"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope. Internal errors are logged with their
// cause and reported without it.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	e := apperr.From(err)
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", e.Code, "error", err)
	} else {
		log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", e.Code, "error", err)
	}
	WriteJSON(w, status, errorEnvelope{Error: e})
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON: %v", err)
	}
	return Validate(dst)
}

// Validate runs go-playground/validator on s and reports every failing field.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	fields := make(map[string]string, len(verrs))
	var msgs []string
	for _, fe := range verrs {
		field := jsonFieldPath(fe)
		fields[field] = fe.Tag()
		msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; ")).WithDetails(map[string]any{"fields": fields})
}

// jsonFieldPath drops the root type from the namespace, e.g. "location.city".
func jsonFieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// PathID parses the {name} path segment as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// PageFromQuery reads ?cursor= and ?limit=.
func PageFromQuery(r *http.Request) (models.Page, error) {
	var p models.Page
	q := r.URL.Query()
	if c := q.Get("cursor"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			return p, apperr.Validation("invalid cursor")
		}
		p.Cursor = &id
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return p, apperr.Validation("limit must be a positive integer")
		}
		p.Limit = n
	}
	return p.Normalize(), nil
}
