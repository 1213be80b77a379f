package payment

import (
	"context"
	"fmt"
	"strconv"

	"quizgate/internal/domain"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
)

// Fixed plan price: 49 rupees in minor units.
const amountMinorUnits = 49 * 100

// RazorpayLinks creates hosted payment pages. The paying user's identity is
// embedded in the link's notes so the webhook can route the grant.
type RazorpayLinks struct {
	client *razorpay.Client
}

func NewRazorpayLinks(keyID, keySecret string) *RazorpayLinks {
	return &RazorpayLinks{client: razorpay.NewClient(keyID, keySecret)}
}

func (p *RazorpayLinks) Create(_ context.Context, userID int64) (string, error) {
	res, err := p.client.PaymentLink.Create(linkRequest(userID), nil)
	if err != nil {
		return "", fmt.Errorf("create payment link: %w", err)
	}
	shortURL, _ := res["short_url"].(string)
	if shortURL == "" {
		return "", domain.ErrPaymentUnavailable
	}
	return shortURL, nil
}

func linkRequest(userID int64) map[string]interface{} {
	return map[string]interface{}{
		"amount":       amountMinorUnits,
		"currency":     "INR",
		"description":  "quizgate test access, 28 days",
		"reference_id": uuid.NewString(),
		"notes": map[string]interface{}{
			"user_id": strconv.FormatInt(userID, 10),
		},
		"notify": map[string]interface{}{
			"sms":   false,
			"email": false,
		},
		"reminder_enable": true,
	}
}
