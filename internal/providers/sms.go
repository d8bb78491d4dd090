// internal/providers/sms.go
package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
)

// SNSAPI is the slice of the SNS client the SMS provider uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSPayload is one SMS delivery request.
type SMSPayload struct {
	Phone   string
	Message string
}

// SMSProvider delivers SMS through AWS SNS.
type SMSProvider struct {
	client   SNSAPI
	senderID string
	logger   logger.Logger
}

// NewSMSProvider builds an SNS-backed provider using the default AWS
// credential chain.
func NewSMSProvider(ctx context.Context, region, senderID string, log logger.Logger) (*SMSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSMSProviderWithClient(sns.NewFromConfig(cfg), senderID, log), nil
}

// NewSMSProviderWithClient wires an existing SNS client, used by tests.
func NewSMSProviderWithClient(client SNSAPI, senderID string, log logger.Logger) *SMSProvider {
	return &SMSProvider{
		client:   client,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"provider": "sns"}),
	}
}

// Send publishes one SMS.
func (p *SMSProvider) Send(ctx context.Context, payload SMSPayload) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(payload.Phone),
		Message:     aws.String(payload.Message),
	}
	if p.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(p.senderID),
			},
		}
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.NewProviderTimeoutError("sns")
		}
		return apperrors.NewProviderError("sns", err)
	}

	p.logger.Debug("sms delivered", map[string]interface{}{
		"phone": payload.Phone,
	})
	return nil
}
