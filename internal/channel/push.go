package channel

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
)

// PushSender publishes to a platform endpoint ARN through SNS.
type PushSender struct {
	client SNSService
	logger logger.Logger
}

func NewPushSender(client SNSService, log logger.Logger) *PushSender {
	return &PushSender{
		client: client,
		logger: log.WithFields(map[string]interface{}{"channel": string(models.ChannelPush)}),
	}
}

func (s *PushSender) Send(ctx context.Context, msg Message) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"title": msg.Subject,
		"body":  msg.Body,
	})

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(msg.To),
		Message:   aws.String(string(payload)),
	})
	if err != nil {
		s.logger.Error("push send failed", map[string]interface{}{
			"error":  err,
			"target": msg.To,
		})
		var disabled *types.EndpointDisabledException
		if errors.As(err, &disabled) {
			return "", errs.NewPermanentSendError(string(models.ChannelPush), err.Error())
		}
		return "", errs.NewTransientSendError(string(models.ChannelPush), err)
	}
	return aws.ToString(out.MessageId), nil
}
