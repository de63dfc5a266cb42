package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/shared"
)

func TestRespondErrorMapsWrappedSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{Wrap(ErrNotFound, errors.New("voucher 9")), http.StatusNotFound, "voucher 9"},
		{Wrap(ErrConflict, errors.New("bad transition")), http.StatusConflict, "bad transition"},
		{Wrap(ErrValidation, errors.New("unbalanced")), http.StatusBadRequest, "unbalanced"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.detail, body.Detail)
	}
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var p payload
	err := DecodeAndValidate(req, &p)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Name failed required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"cement"}`))
	require.NoError(t, DecodeAndValidate(req, &p))
	require.Equal(t, "cement", p.Name)
}

func TestCompanyID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := CompanyID(req)
	require.ErrorIs(t, err, ErrValidation)

	req = req.WithContext(shared.ContextWithCompany(req.Context(), 7))
	id, err := CompanyID(req)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
}
