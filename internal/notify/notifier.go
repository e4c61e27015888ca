// Package notify sends receipt outcome emails over SES with an optional SMS copy over SNS.
// SMS failures are logged and never fail an email that was delivered.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Recipients resolves an employee id to contact details.
type Recipients interface {
	Get(ctx context.Context, employeeID string) (*models.Employee, error)
}

type Config struct {
	FromEmail   string
	SMSSenderID string
	// SMSCopy also texts the subject line to employees with a phone number.
	SMSCopy bool
}

type Notifier struct {
	config     Config
	recipients Recipients
	sesClient  SESService
	snsClient  SNSService
	logger     logger.Logger
}

// NewNotifier builds a notifier. A nil SES client disables email; a nil SNS client disables SMS.
func NewNotifier(cfg Config, recipients Recipients, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:     cfg,
		recipients: recipients,
		sesClient:  sesClient,
		snsClient:  snsClient,
		logger:     log,
	}
}

// SendEmail emails the employee. A disabled email channel returns a "disabled" result, not an error.
func (n *Notifier) SendEmail(ctx context.Context, recipientID, subject, content string) (*models.NotificationResult, error) {
	emp, err := n.recipients.Get(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	result := &models.NotificationResult{
		NotificationID: uuid.New().String(),
		RecipientID:    recipientID,
		Channel:        "email",
		Status:         models.NotificationDisabled,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}
	if n.sesClient == nil {
		n.logger.Warn("email channel disabled", map[string]interface{}{"recipientId": recipientID})
		return result, nil
	}
	if emp.Email == "" {
		return nil, apperrors.NewNotificationSendFailedError("email", fmt.Errorf("employee %s has no email address", recipientID))
	}

	out, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{emp.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(plainText(content))},
				Html: &types.Content{Data: aws.String(content)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	if err != nil {
		n.logger.Error("email send failed", map[string]interface{}{
			"error":       err,
			"recipientId": recipientID,
		})
		return nil, apperrors.NewNotificationSendFailedError("email", err)
	}

	result.Status = models.NotificationSent
	if out != nil && out.MessageId != nil {
		result.MessageID = *out.MessageId
	}

	if n.config.SMSCopy && n.snsClient != nil && emp.Phone != "" {
		if err := n.sendSMS(ctx, emp.Phone, subject); err != nil {
			n.logger.Warn("sms send failed", map[string]interface{}{
				"error":       err,
				"recipientId": recipientID,
			})
		} else {
			result.SMSSent = true
		}
	}

	n.logger.Info("email sent", map[string]interface{}{
		"recipientId": recipientID,
		"messageId":   result.MessageID,
	})
	return result, nil
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	in := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if n.config.SMSSenderID != "" {
		in.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(n.config.SMSSenderID)},
		}
	}
	_, err := n.snsClient.Publish(ctx, in)
	return err
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func plainText(html string) string {
	text := strings.ReplaceAll(html, "</p>", "\n")
	text = strings.ReplaceAll(text, "<br>", "\n")
	text = tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
