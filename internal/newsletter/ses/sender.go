// Package ses provides newsletter delivery through Amazon SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/bissquit/pnw-deals/internal/newsletter"
)

const charset = "UTF-8"

// Config holds SES configuration. Without static keys the default AWS
// credential chain is used.
type Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// API is the subset of the SES v2 client used by Sender.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender implements newsletter.Sender with Amazon SES.
type Sender struct {
	client           API
	configurationSet string
}

// NewSender loads AWS configuration and creates an SES sender.
func NewSender(ctx context.Context, config Config) (*Sender, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses sender: load aws config: %w", err)
	}

	slog.Info("ses sender configured",
		"region", config.Region,
		"static_credentials", config.AccessKeyID != "",
		"configuration_set", config.ConfigurationSet,
	)

	return NewSenderWithClient(sesv2.NewFromConfig(awsCfg), config.ConfigurationSet), nil
}

// NewSenderWithClient creates a sender over an existing SES client.
func NewSenderWithClient(client API, configurationSet string) *Sender {
	return &Sender{
		client:           client,
		configurationSet: configurationSet,
	}
}

// Provider implements newsletter.Sender.
func (s *Sender) Provider() string {
	return "ses"
}

// Send implements newsletter.Sender.
func (s *Sender) Send(ctx context.Context, msg newsletter.Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String(charset)},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("stream"), Value: aws.String("weekly_newsletter")},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return classify(err)
	}

	slog.Debug("email accepted by ses", "message_id", aws.ToString(out.MessageId))
	return nil
}

func classify(err error) error {
	var (
		tooMany     *types.TooManyRequestsException
		limit       *types.LimitExceededException
		rejected    *types.MessageRejected
		badRequest  *types.BadRequestException
		suspended   *types.AccountSuspendedException
		paused      *types.SendingPausedException
		notVerified *types.MailFromDomainNotVerifiedException
	)

	switch {
	case errors.As(err, &tooMany), errors.As(err, &limit):
		return fmt.Errorf("%w: ses: %w", newsletter.ErrRateLimited, err)
	case errors.As(err, &rejected), errors.As(err, &badRequest):
		return fmt.Errorf("%w: ses: %w", newsletter.ErrInvalidRecipient, err)
	case errors.As(err, &suspended), errors.As(err, &paused), errors.As(err, &notVerified):
		return fmt.Errorf("%w: ses: %w", newsletter.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("ses: %w", err)
}
