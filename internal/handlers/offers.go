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

type createOfferInput struct {
	RequestID     int    `json:"requestId"`
	Price         int    `json:"price"`
	DeliveryPrice *int   `json:"deliveryPrice"`
	Comment       string `json:"comment"`
}

func (in *createOfferInput) validate() error {
	if in.RequestID <= 0 {
		return apperrors.Validation("requestId must be positive")
	}
	if in.Price <= 0 {
		return apperrors.Validation("price must be positive")
	}
	if in.DeliveryPrice != nil && *in.DeliveryPrice < 0 {
		return apperrors.Validation("deliveryPrice must not be negative")
	}
	if len(in.Comment) > 1000 {
		return apperrors.Validation("comment max length 1000")
	}
	return nil
}

// CreateOfferHandler обрабатывает POST /offers: представитель компании
// подает предложение по активной заявке.
func (h *Handler) CreateOfferHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	if user.Role != models.RoleProducer || user.CompanyID == nil {
		apperrors.WriteError(w, apperrors.Forbidden("only company representatives may submit offers"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	defer r.Body.Close()

	var input createOfferInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body: %v", err))
		return
	}
	if err := input.validate(); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	request, err := h.Store.GetRequest(r.Context(), input.RequestID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if request.Status != models.RequestStatusActive {
		apperrors.WriteError(w, apperrors.Conflict("request is not active"))
		return
	}

	offer := &models.Offer{
		RequestID:     input.RequestID,
		CompanyID:     *user.CompanyID,
		Price:         input.Price,
		DeliveryPrice: input.DeliveryPrice,
		Comment:       input.Comment,
		Status:        models.OfferStatusPending,
	}
	if err := h.Store.CreateOffer(r.Context(), offer); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	msg := notify.NewMessage("offer.created",
		"Новое предложение по вашей заявке",
		fmt.Sprintf("Предложение #%d по заявке #%d, цена %d", offer.ID, offer.RequestID, offer.Price))
	msg.UserID = request.UserID
	msg.Metadata = map[string]string{"offerId": strconv.Itoa(offer.ID)}
	h.Notify.DispatchAsync(msg)

	respondJSON(w, http.StatusCreated, offer)
}

// UpdateOfferStatusHandler обрабатывает PUT /offers/{offerId} с телом
// {"status": "accepted"|"rejected"}. Решение принимает владелец заявки
// или админ. Принятие выполняется одной транзакцией: целевое
// предложение accepted, остальные pending по заявке rejected, заявка
// in_progress, создается заказ. После коммита производитель
// уведомляется без ожидания.
func (h *Handler) UpdateOfferStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	offerID, err := strconv.Atoi(chi.URLParam(r, "offerId"))
	if err != nil || offerID <= 0 {
		apperrors.WriteError(w, apperrors.Validation("invalid offerId"))
		return
	}

	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteError(w, apperrors.Validation("invalid JSON body"))
		return
	}
	if input.Status != models.OfferStatusAccepted && input.Status != models.OfferStatusRejected {
		apperrors.WriteError(w, apperrors.Validation("status must be 'accepted' or 'rejected'"))
		return
	}

	offer, err := h.Store.GetOffer(r.Context(), offerID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	request, err := h.Store.GetRequest(r.Context(), offer.RequestID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if request.UserID != user.ID && !isAdmin(user) {
		apperrors.WriteError(w, apperrors.Forbidden("only request owner or admin may decide on offers"))
		return
	}

	if input.Status == models.OfferStatusRejected {
		if err := h.Store.RejectOffer(r.Context(), offerID); err != nil {
			apperrors.WriteError(w, err)
			return
		}
		offer.Status = models.OfferStatusRejected
		respondJSON(w, http.StatusOK, offer)
		return
	}

	order, err := h.Store.AcceptOffer(r.Context(), offerID)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	offer.Status = models.OfferStatusAccepted

	msg := notify.NewMessage("offer.accepted",
		"Ваше предложение принято",
		fmt.Sprintf("Предложение #%d принято, создан заказ #%d на сумму %d", offer.ID, order.ID, order.TotalPrice))
	msg.CompanyID = offer.CompanyID
	msg.Metadata = map[string]string{
		"offerId": strconv.Itoa(offer.ID),
		"orderId": strconv.Itoa(order.ID),
	}
	h.Notify.DispatchAsync(msg)

	respondJSON(w, http.StatusOK, offer)
}
