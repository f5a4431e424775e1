package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Типизированные ошибки уровня приложения. Обработчики переводят их
// в HTTP-статусы через WriteError; внутренние детали наружу не уходят.

// ValidationError — некорректный или неполный ввод пользователя.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthenticationError — вызывающий не аутентифицирован.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string { return e.Msg }

// AuthorizationError — аутентифицирован, но не имеет прав на операцию.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// NotFoundError — сущность не найдена.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

// ConflictError — состояние сущности несовместимо с операцией
// (дубликат отзыва, гонка при принятии предложения и т.п.).
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// DependencyError — отказ БД или внешнего сервиса. Наружу уходит
// обобщенное сообщение, детали только в лог.
type DependencyError struct {
	Err error
}

func (e *DependencyError) Error() string { return e.Err.Error() }
func (e *DependencyError) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(msg string) error {
	return &AuthenticationError{Msg: msg}
}

func Forbidden(msg string) error {
	return &AuthorizationError{Msg: msg}
}

func NotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func Dependency(err error) error {
	return &DependencyError{Err: err}
}

// HTTPStatus сопоставляет ошибку с HTTP-статусом.
func HTTPStatus(err error) int {
	var (
		ve   *ValidationError
		ae   *AuthenticationError
		fe   *AuthorizationError
		nfe  *NotFoundError
		ce   *ConflictError
		depe *DependencyError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ae):
		return http.StatusUnauthorized
	case errors.As(err, &fe):
		return http.StatusForbidden
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &depe):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Reason string `json:"reason"`
}

// WriteError пишет структурированную JSON-ошибку. Для DependencyError
// и неизвестных ошибок причина логируется, а клиенту уходит общий текст.
func WriteError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("internal error", zap.Error(err))
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Reason: msg})
}
