package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"flightdash/app"
)

// requestError 请求体本身不合法（无法解析、参数越界等）
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Kind() string { return "invalid_request" }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// notFoundError 请求的资源不存在
type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Kind() string { return "not_found" }

type kinded interface {
	Kind() string
}

// errorKind 返回错误种类及对应的HTTP状态码
func errorKind(err error) (string, int) {
	if errors.Is(err, app.ErrNotReady) {
		return "not_ready", http.StatusServiceUnavailable
	}
	var k kinded
	if !errors.As(err, &k) {
		return "internal", http.StatusInternalServerError
	}
	switch kind := k.Kind(); kind {
	case "missing_feature", "invalid_request":
		return kind, http.StatusBadRequest
	case "not_found":
		return kind, http.StatusNotFound
	case "unknown_category":
		return kind, http.StatusUnprocessableEntity
	case "model_not_trained":
		return kind, http.StatusServiceUnavailable
	default:
		return kind, http.StatusInternalServerError
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

// writeJSON 以JSON格式写出响应，编码失败记录到logger
func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("encode response failed", zap.Int("status", status), zap.Error(err))
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(h.logger, w, status, data)
}

// respondError 按错误种类写出统一的错误信封
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := errorKind(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("kind", kind),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		if kind == "internal" {
			msg = "internal server error"
		}
	}
	h.respondJSON(w, status, errorResponse{Success: false, Error: msg, Kind: kind})
}
