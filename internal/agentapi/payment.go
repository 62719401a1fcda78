package agentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

const DefaultTokenHeader = "token"

// PaymentClient posts purchase instructions. Credentials come from the
// injected settings.
type PaymentClient struct {
	url      string
	settings domain.PaymentSettings
	t        transport
}

func NewPaymentClient(url string, settings domain.PaymentSettings, opts ...Option) *PaymentClient {
	if strings.TrimSpace(settings.TokenHeader) == "" {
		settings.TokenHeader = DefaultTokenHeader
	}
	return &PaymentClient{url: url, settings: settings, t: newTransport(opts)}
}

func (c *PaymentClient) Settings() domain.PaymentSettings { return c.settings }

// Pay submits req. Success only means the purchase was accepted; settlement
// shows up later in the job's payment_status.
func (c *PaymentClient) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentReceipt, error) {
	h := http.Header{}
	if c.settings.Token != "" {
		h.Set(c.settings.TokenHeader, c.settings.Token)
	}
	code, body, err := c.t.do(ctx, "purchase", http.MethodPost, c.url, req, h)
	if err != nil {
		return nil, &PaymentError{StatusCode: code, Err: err}
	}
	if !isSuccess(code) {
		return nil, &PaymentError{StatusCode: code, Body: string(body)}
	}
	if len(body) == 0 || !json.Valid(body) {
		return domain.PaymentReceipt("null"), nil
	}
	return domain.PaymentReceipt(body), nil
}
