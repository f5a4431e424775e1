package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stroymarket/internal/apperrors"
	"stroymarket/internal/notify"
	"stroymarket/internal/parser"
	"stroymarket/models"
)

// Handler оборачивает Storage, парсер запросов и диспетчер уведомлений.
type Handler struct {
	Store  StorageInterface
	Parser *parser.Parser
	Notify *notify.Dispatcher
}

// NewHandler создает новый Handler.
func NewHandler(store StorageInterface, p *parser.Parser, dispatcher *notify.Dispatcher) *Handler {
	return &Handler{Store: store, Parser: p, Notify: dispatcher}
}

// PingHandler отвечает "ok" для проверки сервера.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// respondJSON пишет успешный JSON-ответ.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// authenticate возвращает пользователя по заголовку X-User-Id.
// Аутентификацию выполняет внешний слой, сюда приходит уже
// проверенный идентификатор.
func (h *Handler) authenticate(r *http.Request) (*models.User, error) {
	idStr := r.Header.Get("X-User-Id")
	if idStr == "" {
		return nil, apperrors.Unauthenticated("missing X-User-Id header")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return nil, apperrors.Unauthenticated("invalid X-User-Id header")
	}
	user, err := h.Store.GetUserByID(r.Context(), id)
	if err != nil {
		return nil, apperrors.Unauthenticated("unknown user")
	}
	return user, nil
}

// isAdmin — админ имеет доступ ко всем операциям жизненного цикла.
func isAdmin(u *models.User) bool {
	return u.Role == models.RoleAdmin
}
