// Package notify sends the credit-exhaustion email that accompanies an
// ingest pause. Sending is best-effort: a delivery failure never blocks
// the pause itself.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	appconfig "github.com/foundercrm/commitment-engine/internal/config"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// Mailer is the slice of SES v2 the notifier uses.
type Mailer interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

const exhaustedSubject = "Your commitment tracking is paused"

const exhaustedTemplate = `<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2933;">
  <p>Hi {{ name }},</p>
  <p>Your account has run out of extraction credits, so we have paused
  scanning your inbox for new commitments. Everything already tracked is
  still there, and nothing is lost.</p>
  <p>Top up your credits to pick up right where you left off:</p>
  <p><a href="{{ support_url }}">{{ support_url }}</a></p>
  <p>&mdash; The FounderCRM team</p>
</body>
</html>`

// Notifier renders and sends lifecycle emails over SES.
type Notifier struct {
	mailer  Mailer
	tmpl    *liquid.Template
	from    string
	support string
	enabled bool
}

// New builds a Notifier from config. When notifications are disabled the
// returned Notifier is a no-op and no AWS client is constructed.
func New(ctx context.Context, cfg appconfig.NotifyConfig) (*Notifier, error) {
	tmpl, err := liquid.NewEngine().ParseString(exhaustedTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing notification template: %w", err)
	}

	n := &Notifier{
		tmpl:    tmpl,
		from:    cfg.FromAddress,
		support: cfg.SupportURL,
		enabled: cfg.Enabled,
	}
	if !cfg.Enabled {
		return n, nil
	}

	awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if awsErr != nil {
		return nil, fmt.Errorf("loading AWS config: %w", awsErr)
	}
	n.mailer = sesv2.NewFromConfig(awsCfg)
	return n, nil
}

// NewWithMailer builds a Notifier around an existing mailer.
func NewWithMailer(mailer Mailer, cfg appconfig.NotifyConfig) (*Notifier, error) {
	tmpl, err := liquid.NewEngine().ParseString(exhaustedTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing notification template: %w", err)
	}
	return &Notifier{
		mailer:  mailer,
		tmpl:    tmpl,
		from:    cfg.FromAddress,
		support: cfg.SupportURL,
		enabled: cfg.Enabled,
	}, nil
}

// CreditsExhausted emails the user that ingest is paused until they top up.
func (n *Notifier) CreditsExhausted(ctx context.Context, email, name string) error {
	if !n.enabled || n.mailer == nil {
		return nil
	}
	if email == "" {
		return fmt.Errorf("no recipient address on record")
	}
	if name == "" {
		name = "there"
	}

	body, err := n.tmpl.RenderString(map[string]any{
		"name":        name,
		"support_url": n.support,
	})
	if err != nil {
		return fmt.Errorf("rendering notification: %w", err)
	}

	_, sendErr := n.mailer.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(exhaustedSubject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if sendErr != nil {
		return fmt.Errorf("sending exhaustion notice: %w", sendErr)
	}

	logger.Info("notify: credit exhaustion notice sent", "email", email)
	return nil
}
