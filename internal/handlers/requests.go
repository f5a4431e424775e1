package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"stroymarket/internal/apperrors"
	"stroymarket/internal/notify"
	"stroymarket/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	var params PaginationParams
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	params.Limit = 20 // дефолт
	params.Offset = 0

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 50 {
			params.Limit = l
		}
	}
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

type createRequestInput struct {
	CategoryID     int        `json:"categoryId"`
	Query          string     `json:"query"`
	Delivery       *bool      `json:"delivery"`
	Address        string     `json:"address"`
	Deadline       *time.Time `json:"deadline"`
	ParsedCategory string     `json:"parsedCategory"`
	Volume         *float64   `json:"volume"`
	Unit           string     `json:"unit"`
	City           string     `json:"city"`
}

func (in *createRequestInput) validate() error {
	if in.CategoryID <= 0 {
		return apperrors.Validation("categoryId is required and must be positive")
	}
	if in.Query == "" || len(in.Query) > 500 {
		return apperrors.Validation("query is required and max length 500")
	}
	if in.Delivery == nil {
		return apperrors.Validation("delivery flag is required")
	}
	return nil
}

// CreateRequestHandler обрабатывает POST /requests: валидирует ввод,
// сохраняет заявку в статусе active и асинхронно рассылает уведомления
// производителям категории. Отказ рассылки заявку не откатывает.
func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	// Ограничение размера тела, чтобы избежать DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	defer r.Body.Close()

	var input createRequestInput
	dec := json.NewDecoder(r.Body)
	// Неизвестные поля отклоняются до любых побочных эффектов.
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body: %v", err))
		return
	}

	if err := input.validate(); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if _, err := h.Store.GetCategory(r.Context(), input.CategoryID); err != nil {
		apperrors.WriteError(w, apperrors.Validation("unknown categoryId"))
		return
	}

	request := &models.Request{
		UserID:         user.ID,
		CategoryID:     input.CategoryID,
		Query:          input.Query,
		ParsedCategory: input.ParsedCategory,
		Volume:         input.Volume,
		Unit:           input.Unit,
		City:           input.City,
		Delivery:       *input.Delivery,
		Address:        input.Address,
		Deadline:       input.Deadline,
		Status:         models.RequestStatusActive,
	}

	if err := h.Store.CreateRequest(r.Context(), request); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	h.notifyProducers(r, request)

	respondJSON(w, http.StatusCreated, request)
}

// notifyProducers собирает компании с товарами в категории заявки и
// запускает рассылку в фоне. Ошибка подбора получателей логируется
// диспетчером и не влияет на ответ клиенту.
func (h *Handler) notifyProducers(r *http.Request, request *models.Request) {
	companies, err := h.Store.GetCompaniesForCategory(r.Context(), request.CategoryID)
	if err != nil || len(companies) == 0 {
		return
	}

	msgs := make([]notify.Message, 0, len(companies))
	for _, c := range companies {
		msg := notify.NewMessage("request.created",
			"Новая заявка по вашей категории",
			fmt.Sprintf("Заявка #%d: %s", request.ID, request.Query))
		msg.CompanyID = c.ID
		msg.Metadata = map[string]string{
			"requestId":  strconv.Itoa(request.ID),
			"categoryId": strconv.Itoa(request.CategoryID),
		}
		msgs = append(msgs, msg)
	}
	h.Notify.DispatchAsync(msgs...)
}

// GetUserRequestsHandler возвращает заявки текущего пользователя.
func (h *Handler) GetUserRequestsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	params := parsePaginationParams(r)

	requests, err := h.Store.GetUserRequests(r.Context(), user.ID, params.Limit, params.Offset)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

// UpdateRequestStatusHandler меняет статус заявки. Разрешено только
// владельцу или админу; статус должен быть одним из четырех определенных.
func (h *Handler) UpdateRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	requestID, err := strconv.Atoi(chi.URLParam(r, "requestId"))
	if err != nil || requestID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid requestId"))
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body"))
		return
	}
	if !models.ValidRequestStatus(input.Status) {
		apperrors.WriteError(w, apperrors.Validation("invalid status value"))
		return
	}

	request, err := h.Store.GetRequest(r.Context(), requestID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if request.UserID != user.ID && !isAdmin(user) {
		apperrors.WriteError(w, apperrors.Forbidden("only request owner or admin may change status"))
		return
	}

	if err := h.Store.UpdateRequestStatus(r.Context(), requestID, input.Status); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	request.Status = input.Status
	respondJSON(w, http.StatusOK, request)
}

// GetRequestOffersHandler возвращает предложения по заявке
// владельцу заявки или админу.
func (h *Handler) GetRequestOffersHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	requestID, err := strconv.Atoi(chi.URLParam(r, "requestId"))
	if err != nil || requestID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid requestId"))
		return
	}

	request, err := h.Store.GetRequest(r.Context(), requestID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if request.UserID != user.ID && !isAdmin(user) {
		apperrors.WriteError(w, apperrors.Forbidden("only request owner or admin may list offers"))
		return
	}

	offers, err := h.Store.GetOffersForRequest(r.Context(), requestID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, offers)
}
