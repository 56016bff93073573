package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/campuscare/clinicdesk/pkg/logger"
)

const signInCodeSubject = "Your sign-in code"

const signInCodeHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hi %s,</p>
        <p>Your sign-in code is:</p>
        <div class="code">%s</div>
        <p>The code expires shortly. If you did not try to sign in, you can ignore this email.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`

const signInCodeText = `Hi %s,

Your sign-in code is: %s

The code expires shortly. If you did not try to sign in, you can ignore this email.

This is an automated message. Please do not reply to this email.
`

// AWSSESEmailService sends transactional mail through AWS SES.
type AWSSESEmailService struct {
	ses         *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewAWSSESEmailService(region, fromAddress string, log *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &AWSSESEmailService{
		ses:         ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      log,
	}, nil
}

// SendSignInCode emails the one-time sign-in code to a staff member. The
// recipient address is masked in logs.
func (s *AWSSESEmailService) SendSignInCode(ctx context.Context, to, name, code string) error {
	out, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: content(signInCodeSubject),
			Body: &types.Body{
				Html: content(fmt.Sprintf(signInCodeHTML, name, code)),
				Text: content(fmt.Sprintf(signInCodeText, name, code)),
			},
		},
	})
	if err != nil {
		s.logger.Error("sign-in code email failed",
			slog.String("email", logger.MaskEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("sign-in code email sent",
		slog.String("email", logger.MaskEmail(to)),
		slog.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

func content(data string) *types.Content {
	return &types.Content{Data: aws.String(data)}
}
