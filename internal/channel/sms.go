package channel

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
)

// SNSService is the slice of the SNS client the SMS and push senders
// use, declared here so tests can supply a mock.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender publishes directly to a phone number through SNS.
type SMSSender struct {
	client   SNSService
	senderID string
	logger   logger.Logger
}

func NewSMSSender(client SNSService, senderID string, log logger.Logger) *SMSSender {
	return &SMSSender{
		client:   client,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"channel": string(models.ChannelSMS)}),
	}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.To),
		Message:     aws.String(msg.Body),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.logger.Error("SMS send failed", map[string]interface{}{
			"error": err,
			"to":    msg.To,
		})
		return "", errs.NewTransientSendError(string(models.ChannelSMS), err)
	}
	return aws.ToString(out.MessageId), nil
}
