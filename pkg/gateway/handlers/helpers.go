package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-live/vigil/pkg/gateway/live/protocol"
	"github.com/vigil-live/vigil/pkg/gateway/mw"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message, RequestID: reqID}})
}

func writeWSError(conn *websocket.Conn, code, message string, closeAfter bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: closeAfter})
	if closeAfter {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}
