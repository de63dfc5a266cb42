package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/sitebooks/internal/shared"
)

var validate = validator.New()

// DecodeAndValidate decodes a JSON body into target and runs struct tag
// validation. Failures are tagged ErrValidation.
func DecodeAndValidate(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return Wrap(ErrValidation, fmt.Errorf("decode body: %w", err))
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return Wrap(ErrValidation, errors.New(strings.Join(msgs, "; ")))
		}
		return Wrap(ErrValidation, err)
	}
	return nil
}

// CompanyID returns the tenant attached by the company scope middleware.
func CompanyID(r *http.Request) (int64, error) {
	id, ok := shared.CompanyFromContext(r.Context())
	if !ok || id <= 0 {
		return 0, Wrap(ErrValidation, shared.ErrCompanyRequired)
	}
	return id, nil
}

// URLInt64 parses a positive chi URL parameter.
func URLInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, Wrap(ErrValidation, fmt.Errorf("invalid %s %q", name, raw))
	}
	return id, nil
}

// QueryInt64 parses an optional query parameter; empty yields 0.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, Wrap(ErrValidation, fmt.Errorf("invalid %s %q", name, raw))
	}
	return v, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, Wrap(ErrValidation, fmt.Errorf("invalid %s %q", name, raw))
	}
	return t, nil
}
