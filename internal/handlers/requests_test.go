package handlers_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stroymarket/internal/handlers/testutils"
	"stroymarket/models"
)

func TestCreateRequestHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	reqBody := `{
        "categoryId": 1,
        "query": "бетон М300 с доставкой",
        "delivery": true,
        "address": "Шымкент, ул. Байтурсынова 10"
    }`
	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "1")
	w := httptest.NewRecorder()

	handler.CreateRequestHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, string(body), "бетон М300")
	require.Contains(t, string(body), `"status":"active"`)
}

func TestCreateRequestHandlerUnauthenticated(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"categoryId":1,"query":"бетон","delivery":false}`))
	w := httptest.NewRecorder()

	handler.CreateRequestHandler(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
}

func TestCreateRequestHandlerValidation(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	cases := []struct {
		name string
		body string
	}{
		{"missing category", `{"query":"бетон","delivery":true}`},
		{"missing query", `{"categoryId":1,"delivery":true}`},
		{"missing delivery flag", `{"categoryId":1,"query":"бетон"}`},
		{"unknown field", `{"categoryId":1,"query":"бетон","delivery":true,"extra":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(tc.body))
			req.Header.Set("X-User-Id", "1")
			w := httptest.NewRecorder()

			handler.CreateRequestHandler(w, req)

			res := w.Result()
			defer res.Body.Close()
			body, _ := io.ReadAll(res.Body)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
			require.Contains(t, string(body), "reason")
		})
	}
}

// Отказ подбора получателей рассылки не должен ломать создание заявки.
func TestCreateRequestHandlerNotificationFailure(t *testing.T) {
	mockStore := &MockStorage{
		GetCompaniesFunc: func(ctx context.Context, categoryID int) ([]models.Company, error) {
			return nil, errors.New("notification channel down")
		},
	}
	handler := newTestHandler(mockStore)

	reqBody := `{"categoryId":1,"query":"кирпич 5000 шт","delivery":false}`
	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(reqBody))
	req.Header.Set("X-User-Id", "1")
	w := httptest.NewRecorder()

	handler.CreateRequestHandler(w, req)

	require.Equal(t, http.StatusCreated, w.Result().StatusCode)
}

func TestUpdateRequestStatusHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/requests/1/status", strings.NewReader(`{"status":"cancelled"}`))
	req.Header.Set("X-User-Id", "1")
	req = testutils.WithChiURLParams(req, map[string]string{"requestId": "1"})
	w := httptest.NewRecorder()

	handler.UpdateRequestStatusHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"status":"cancelled"`)
}

func TestUpdateRequestStatusHandlerForbidden(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	// Пользователь 4 не владелец заявки пользователя 1.
	req := httptest.NewRequest(http.MethodPut, "/requests/1/status", strings.NewReader(`{"status":"cancelled"}`))
	req.Header.Set("X-User-Id", "4")
	req = testutils.WithChiURLParams(req, map[string]string{"requestId": "1"})
	w := httptest.NewRecorder()

	handler.UpdateRequestStatusHandler(w, req)

	require.Equal(t, http.StatusForbidden, w.Result().StatusCode)
}

func TestUpdateRequestStatusHandlerInvalidStatus(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/requests/1/status", strings.NewReader(`{"status":"archived"}`))
	req.Header.Set("X-User-Id", "1")
	req = testutils.WithChiURLParams(req, map[string]string{"requestId": "1"})
	w := httptest.NewRecorder()

	handler.UpdateRequestStatusHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestGetUserRequestsHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	req.Header.Set("X-User-Id", "1")
	w := httptest.NewRecorder()

	handler.GetUserRequestsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "бетон")
}
