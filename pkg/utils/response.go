package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondErrorWithDebug 发送带调试信息的错误响应，与后端的错误体格式一致。
func RespondErrorWithDebug(w http.ResponseWriter, status int, message string, debug []string) {
	if len(debug) == 0 {
		RespondError(w, status, message)
		return
	}
	RespondJSON(w, status, map[string]any{"error": message, "debug": debug})
}

// DecodeJSON 解析请求体，空请求体视为零值。
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
