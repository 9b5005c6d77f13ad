package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/atendai/chatd/internal/chat"
)

// Localized user-facing messages. Internal error detail never reaches the
// client; it goes to the server log only.
const (
	msgMessageRequired = "Campo 'message' é obrigatório."
	msgInvalidBody     = "Corpo da requisição inválido."
	msgInternalError   = "Erro interno ao gerar resposta."
)

type chatRequest struct {
	// Message is kept raw so a non-string value can be rejected with a
	// validation error instead of a generic decode failure.
	Message   json.RawMessage `json:"message"`
	SessionID string          `json:"sessionId"`
}

type chatResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("backend OK"))
}

func handleChat(service *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
			return
		}

		// Validation happens before any store access or provider call.
		message, ok := decodeMessage(req.Message)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMessageRequired})
			return
		}

		sessionID := service.ResolveSession(req.SessionID)

		reply, err := service.Exchange(r.Context(), sessionID, message)
		if err != nil {
			log.Printf("chat exchange failed (session %s): %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternalError})
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{SessionID: sessionID, Reply: reply})
	}
}

// decodeMessage accepts only a non-empty JSON string.
func decodeMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return "", false
	}
	if message == "" {
		return "", false
	}
	return message, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
