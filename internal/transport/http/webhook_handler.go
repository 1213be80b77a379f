package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"quizgate/internal/app"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw body.
const signatureHeader = "X-Razorpay-Signature"

// WebhookHandler processes asynchronous payment notifications. A verified
// capture event activates the paying user's subscription; everything else is
// acknowledged and dropped.
type WebhookHandler struct {
	service *app.QuizService
	secret  string
}

func NewWebhookHandler(service *app.QuizService, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				Notes json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		PaymentLink struct {
			Entity struct {
				Notes json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment_link"`
	} `json:"payload"`
}

// HandleWebhook implements the notification contract: 400 on a bad signature,
// 200 for anything acknowledged (including ignored event types and missing
// user ids), 500 on internal faults. Faults never crash the handler.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("webhook panic: %v", p)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var notes json.RawMessage
	switch event.Event {
	case "payment.captured":
		notes = event.Payload.Payment.Entity.Notes
	case "payment_link.paid":
		notes = event.Payload.PaymentLink.Entity.Notes
	default:
		// Unknown event types are acknowledged so the provider stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}

	userID, ok := userIDFromNotes(notes)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	expiry, err := h.service.Activate(r.Context(), userID)
	if err != nil {
		log.Printf("webhook: activate user %d: %v", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log.Printf("webhook: subscription for user %d active until %s", userID, expiry.Format("2006-01-02"))
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// userIDFromNotes digs the string-encoded user id out of the notes object.
// Razorpay sends notes as an empty array when none were set, so the decode is
// best-effort: anything that is not a string map with a numeric user_id means
// no grant.
func userIDFromNotes(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var notes map[string]string
	if err := json.Unmarshal(raw, &notes); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(notes["user_id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
