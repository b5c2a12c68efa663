package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shaiso/Helmsman/internal/domain"
)

// Коды ошибок уровня HTTP, которых нет среди кодов domain.
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
)

// ErrorResponse — структура ответа с ошибкой (v3).
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataResponse — структура успешного ответа (v3).
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком (v3).
type ListResponse struct {
	Data   any `json:"data"`
	Total  int `json:"total"`
	Offset int `json:"offset,omitempty"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет ресурс со статусом 200.
func Success(w http.ResponseWriter, f Formatter, data any) {
	JSON(w, http.StatusOK, f.Resource(data))
}

// Created отправляет созданный ресурс со статусом 201.
func Created(w http.ResponseWriter, f Formatter, data any) {
	JSON(w, http.StatusCreated, f.Resource(data))
}

// NotModified отправляет 304 без тела.
func NotModified(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotModified)
}

// List отправляет страницу списка.
func List(w http.ResponseWriter, f Formatter, data any, page Page) {
	JSON(w, http.StatusOK, f.List(data, page))
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, f Formatter, status int, code, message string) {
	JSON(w, status, f.Error(code, message))
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, f Formatter, message string) {
	Error(w, f, http.StatusBadRequest, domain.KindBadParameters, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, f Formatter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, f, http.StatusInternalServerError, domain.KindInternal, "internal server error")
}

// StatusFor возвращает HTTP статус для кода ошибки.
func StatusFor(kind string) int {
	switch kind {
	case domain.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domain.KindConflict, domain.KindExecutionsRunning:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindMaintenanceActive:
		return http.StatusServiceUnavailable
	case domain.KindBadParameters:
		return http.StatusBadRequest
	case domain.KindDispatch:
		return http.StatusBadGateway
	case domain.KindExecutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleError преобразует ошибку сервиса в HTTP ответ.
// Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, f Formatter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	kind := domain.ErrorKind(err)
	if kind == domain.KindInternal {
		InternalError(w, f, logger, err)
		return true
	}

	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error_code", kind, "error", err)
	}
	Error(w, f, status, kind, err.Error())
	return true
}
