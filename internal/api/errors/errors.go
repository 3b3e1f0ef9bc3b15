// Пакет errors — конструкторы стандартных ошибок в формате Channel Store.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib осознанный

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeInvalidID        = "INVALID_ID"
	CodeMissingBody      = "MISSING_BODY"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeForbidden        = "FORBIDDEN"
	CodeNotAvailable     = "NOT_AVAILABLE"
	CodeMissingChunks    = "MISSING_CHUNKS"
	CodeChannelNotFound  = "CHANNEL_NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Channel Store.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// MethodNotAllowed — 405 путь объявлен с другим HTTP-методом.
func MethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// MissingToken — 401 токен не представлен ни одним источником.
func MissingToken(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeMissingToken, "Токен не представлен")
}

// InvalidToken — 401 ни один кандидат не совпал с секретом.
func InvalidToken(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidToken, "Недействительный токен")
}

// Forbidden — 403 операция запрещена для текущего состояния ресурса.
func Forbidden(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusForbidden, code, message)
}

// InternalError — 500 внутренняя ошибка. Детали остаются в логах,
// вызывающему отдаётся только общее сообщение.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
