// internal/providers/email.go
// Package providers holds the external delivery integrations: SES for email,
// SNS for SMS and an Interakt-style HTTP API for WhatsApp. Each provider is
// constructed against a small client interface so handlers can be tested
// with doubles.
package providers

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
)

// SESAPI is the slice of the SES client the email provider uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendTemplatedEmail(ctx context.Context, params *ses.SendTemplatedEmailInput, optFns ...func(*ses.Options)) (*ses.SendTemplatedEmailOutput, error)
}

// EmailPayload is one email delivery request.
type EmailPayload struct {
	To           string
	Subject      string
	Message      string
	TemplateName string
	TemplateData map[string]interface{}
}

// EmailProvider delivers email through AWS SES.
type EmailProvider struct {
	client    SESAPI
	fromEmail string
	logger    logger.Logger
}

// NewEmailProvider builds an SES-backed provider using the default AWS
// credential chain.
func NewEmailProvider(ctx context.Context, region, fromEmail string, log logger.Logger) (*EmailProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewEmailProviderWithClient(ses.NewFromConfig(cfg), fromEmail, log), nil
}

// NewEmailProviderWithClient wires an existing SES client, used by tests.
func NewEmailProviderWithClient(client SESAPI, fromEmail string, log logger.Logger) *EmailProvider {
	return &EmailProvider{
		client:    client,
		fromEmail: fromEmail,
		logger:    log.WithFields(map[string]interface{}{"provider": "ses"}),
	}
}

// Send delivers one email. A template name routes through SES templated
// sending with the template data serialized as JSON; otherwise the plain
// message is sent as the body.
func (p *EmailProvider) Send(ctx context.Context, payload EmailPayload) error {
	var err error
	if payload.TemplateName != "" {
		data := payload.TemplateData
		if data == nil {
			data = map[string]interface{}{}
		}
		raw, jsonErr := json.Marshal(data)
		if jsonErr != nil {
			return apperrors.NewProviderError("ses", jsonErr)
		}

		_, err = p.client.SendTemplatedEmail(ctx, &ses.SendTemplatedEmailInput{
			Source:       aws.String(p.fromEmail),
			Destination:  &types.Destination{ToAddresses: []string{payload.To}},
			Template:     aws.String(payload.TemplateName),
			TemplateData: aws.String(string(raw)),
		})
	} else {
		_, err = p.client.SendEmail(ctx, &ses.SendEmailInput{
			Source:      aws.String(p.fromEmail),
			Destination: &types.Destination{ToAddresses: []string{payload.To}},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(payload.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(payload.Message)},
				},
			},
		})
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.NewProviderTimeoutError("ses")
		}
		return apperrors.NewProviderError("ses", err)
	}

	p.logger.Debug("email delivered", map[string]interface{}{
		"to":       payload.To,
		"template": payload.TemplateName,
	})
	return nil
}
