// internal/providers/whatsapp.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "notification-system/internal/common/errors"
	httpclient "notification-system/internal/common/http"
	"notification-system/internal/common/logger"
)

// WhatsAppPayload is one WhatsApp template delivery request. BodyValues are
// the positional template values in layout order.
type WhatsAppPayload struct {
	Phone        string
	TemplateName string
	BodyValues   []string
}

// WhatsAppProvider delivers template messages through an Interakt-style
// public message API.
type WhatsAppProvider struct {
	client       *httpclient.Client
	baseURL      string
	apiKey       string
	languageCode string
	logger       logger.Logger
}

func NewWhatsAppProvider(client *httpclient.Client, baseURL, apiKey, languageCode string, log logger.Logger) *WhatsAppProvider {
	return &WhatsAppProvider{
		client:       client,
		baseURL:      baseURL,
		apiKey:       apiKey,
		languageCode: languageCode,
		logger:       log.WithFields(map[string]interface{}{"provider": "whatsapp"}),
	}
}

type whatsAppRequest struct {
	FullPhoneNumber string           `json:"fullPhoneNumber"`
	Type            string           `json:"type"`
	Template        whatsAppTemplate `json:"template"`
}

type whatsAppTemplate struct {
	Name         string   `json:"name"`
	LanguageCode string   `json:"languageCode"`
	BodyValues   []string `json:"bodyValues"`
}

// Send posts one template message. Non-2xx responses and transport errors
// are provider errors; a lapsed context deadline is reported as a timeout.
func (p *WhatsAppProvider) Send(ctx context.Context, payload WhatsAppPayload) error {
	body, err := json.Marshal(whatsAppRequest{
		FullPhoneNumber: payload.Phone,
		Type:            "Template",
		Template: whatsAppTemplate{
			Name:         payload.TemplateName,
			LanguageCode: p.languageCode,
			BodyValues:   payload.BodyValues,
		},
	})
	if err != nil {
		return apperrors.NewProviderError("whatsapp", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/public/message/", bytes.NewReader(body))
	if err != nil {
		return apperrors.NewProviderError("whatsapp", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.NewProviderTimeoutError("whatsapp")
		}
		return apperrors.NewProviderError("whatsapp", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewProviderError("whatsapp",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	p.logger.Debug("whatsapp message delivered", map[string]interface{}{
		"phone":    payload.Phone,
		"template": payload.TemplateName,
	})
	return nil
}
