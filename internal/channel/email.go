package channel

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
)

// SESService is the slice of the SES client the email sender uses,
// declared here so tests can supply a mock.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender delivers through SES, throttled to the account send rate.
type EmailSender struct {
	client  SESService
	from    string
	limiter *rate.Limiter
	timeout time.Duration
	logger  logger.Logger
}

func NewEmailSender(client SESService, from string, ratePerSecond float64, timeout time.Duration, log logger.Logger) *EmailSender {
	if ratePerSecond <= 0 {
		ratePerSecond = 14
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailSender{
		client:  client,
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"channel": string(models.ChannelEmail)}),
	}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", errs.NewTransientSendError(string(models.ChannelEmail), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	html := msg.HTMLBody
	if html == "" {
		html = msg.Body
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body)},
				Html: &types.Content{Data: aws.String(html)},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		s.logger.Error("email send failed", map[string]interface{}{
			"error": err,
			"to":    msg.To,
		})
		var rejected *types.MessageRejected
		var invalid *types.MailFromDomainNotVerifiedException
		if errors.As(err, &rejected) || errors.As(err, &invalid) {
			return "", errs.NewPermanentSendError(string(models.ChannelEmail), err.Error())
		}
		return "", errs.NewTransientSendError(string(models.ChannelEmail), err)
	}

	return aws.ToString(out.MessageId), nil
}
