package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESConfig configures the SES transport.
type SESConfig struct {
	Region           string
	From             string
	ConfigurationSet string
}

// SESTransport delivers messages through Amazon SES.
type SESTransport struct {
	client SESAPI
	config SESConfig
}

// NewSESTransport loads the default AWS credential chain and creates an SES client.
func NewSESTransport(ctx context.Context, config SESConfig) (*SESTransport, error) {
	if config.From == "" {
		return nil, fmt.Errorf("SES sender address is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESTransportWithClient(ses.NewFromConfig(cfg), config), nil
}

// NewSESTransportWithClient wraps an existing client.
func NewSESTransportWithClient(client SESAPI, config SESConfig) *SESTransport {
	return &SESTransport{client: client, config: config}
}

// Deliver sends msg with SendEmail.
func (s *SESTransport) Deliver(ctx context.Context, msg Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.config.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
			},
		},
	}
	if s.config.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.config.ConfigurationSet)
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
