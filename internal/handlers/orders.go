package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stroymarket/internal/apperrors"
	"stroymarket/internal/notify"
	"stroymarket/models"
)

// isOrderClient / isOrderProducer — стороны заказа.
func isOrderClient(u *models.User, o *models.Order) bool {
	return u.ID == o.ClientID
}

func isOrderProducer(u *models.User, o *models.Order) bool {
	return u.Role == models.RoleProducer && u.CompanyID != nil && *u.CompanyID == o.CompanyID
}

// transitionAllowedFor проверяет роль для конкретного перехода поверх
// базовой проверки принадлежности к заказу.
func transitionAllowedFor(u *models.User, o *models.Order, to string) bool {
	switch {
	case o.Status == models.OrderStatusConfirmed && to == models.OrderStatusDelivering:
		return isOrderProducer(u, o)
	case o.Status == models.OrderStatusConfirmed && to == models.OrderStatusCancelled:
		return isOrderClient(u, o) || isOrderProducer(u, o) || isAdmin(u)
	case o.Status == models.OrderStatusDelivering:
		return isOrderProducer(u, o)
	case o.Status == models.OrderStatusDelivered && to == models.OrderStatusCompleted:
		return isOrderClient(u, o)
	}
	return false
}

// UpdateOrderStatusHandler обрабатывает PATCH /orders/{orderId}.
// Переходы строго по таблице статусов; недопустимый переход возвращает
// 400 с именами обоих статусов и заказ не меняет. Каждый успешный
// переход порождает уведомление со старым и новым статусом.
func (h *Handler) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "orderId"))
	if err != nil || orderID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid orderId"))
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body"))
		return
	}
	if !models.ValidOrderStatus(input.Status) {
		apperrors.WriteError(w, apperrors.Validation("invalid status value"))
		return
	}

	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	// Базовая проверка: заказ могут менять только его стороны и админ.
	if !isOrderClient(user, order) && !isOrderProducer(user, order) && !isAdmin(user) {
		apperrors.WriteError(w, apperrors.Forbidden("not a party to this order"))
		return
	}

	from := order.Status
	if !models.CanOrderTransition(from, input.Status) {
		apperrors.WriteError(w, apperrors.Validation("%s", models.OrderTransitionError(from, input.Status)))
		return
	}
	if !transitionAllowedFor(user, order, input.Status) {
		apperrors.WriteError(w, apperrors.Forbidden("role is not permitted for this transition"))
		return
	}

	updated, err := h.Store.TransitionOrder(r.Context(), orderID, from, input.Status)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	msg := notify.NewMessage("order.status_changed",
		"Статус заказа изменен",
		fmt.Sprintf("Заказ #%d: %s -> %s, сумма %d", updated.ID, from, updated.Status, updated.TotalPrice))
	msg.CompanyID = updated.CompanyID
	msg.UserID = updated.ClientID
	msg.Metadata = map[string]string{
		"orderId":   strconv.Itoa(updated.ID),
		"oldStatus": from,
		"newStatus": updated.Status,
	}
	h.Notify.DispatchAsync(msg)

	respondJSON(w, http.StatusOK, updated)
}

type createReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReviewHandler обрабатывает POST /orders/{orderId}/reviews.
// Предусловия: заказ существует, вызывающий — его клиент (или админ),
// заказ завершен, отзыва по заказу еще нет.
func (h *Handler) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "orderId"))
	if err != nil || orderID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid orderId"))
		return
	}

	var input createReviewInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body: %v", err))
		return
	}
	if input.Rating < 1 || input.Rating > 5 {
		apperrors.WriteError(w, apperrors.Validation("rating must be an integer from 1 to 5"))
		return
	}
	if len(input.Comment) > 1000 {
		apperrors.WriteError(w, apperrors.Validation("comment max length 1000"))
		return
	}

	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if !isOrderClient(user, order) && !isAdmin(user) {
		apperrors.WriteError(w, apperrors.Forbidden("only the order's client may leave a review"))
		return
	}
	if order.Status != models.OrderStatusCompleted {
		apperrors.WriteError(w, apperrors.Conflict("order is not completed"))
		return
	}

	review := &models.Review{
		OrderID:   order.ID,
		CompanyID: order.CompanyID,
		ClientID:  order.ClientID,
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	if err := h.Store.CreateReview(r.Context(), review); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, review)
}

// GetCompanyReviewsHandler возвращает отзывы о компании и агрегат,
// пересчитанный по таблице отзывов.
func (h *Handler) GetCompanyReviewsHandler(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.Atoi(chi.URLParam(r, "companyId"))
	if err != nil || companyID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid companyId"))
		return
	}

	if _, err := h.Store.GetCompany(r.Context(), companyID); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	reviews, err := h.Store.GetCompanyReviews(r.Context(), companyID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	rating, err := h.Store.GetCompanyRating(r.Context(), companyID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reviews":   reviews,
		"count":     rating.Count,
		"avgRating": rating.AvgRating,
	})
}
