// Package ses delivers platform notifications through Amazon SES v2.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/profile-mailer/internal/domain"
)

// SendEmailAPI is the subset of *sesv2.Client the transport calls.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends simple (non-raw) SES messages.
type Transport struct {
	api SendEmailAPI
}

// New wraps an SES client.
func New(api SendEmailAPI) *Transport {
	return &Transport{api: api}
}

// NewFromKeys builds a client in region. Empty keys use the default
// credential chain.
func NewFromKeys(ctx context.Context, region, accessKey, secretKey string) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return New(sesv2.NewFromConfig(cfg)), nil
}

func (t *Transport) Kind() domain.TransportKind { return domain.TransportPlatform }

func (t *Transport) Send(ctx context.Context, msg *domain.EmailMessage) error {
	to := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, r.Email)
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: no recipients", domain.ErrTransport)
	}

	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	body := &types.Body{Text: content}
	if msg.IsHTML {
		body = &types.Body{Html: content}
	}

	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%q <%s>", msg.FromName, msg.FromEmail)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if msg.ReplyTo != "" {
		in.ReplyToAddresses = []string{msg.ReplyTo}
	}

	if _, err := t.api.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("%w: ses: %v", domain.ErrTransport, err)
	}
	return nil
}
