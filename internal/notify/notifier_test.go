package notify

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/foundercrm/commitment-engine/internal/config"
)

type captureMailer struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (m *captureMailer) SendEmail(_ context.Context, input *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.inputs = append(m.inputs, input)
	return &sesv2.SendEmailOutput{}, m.err
}

func testNotifyConfig() appconfig.NotifyConfig {
	return appconfig.NotifyConfig{
		Enabled:     true,
		FromAddress: "hello@foundercrm.io",
		SupportURL:  "https://foundercrm.io/billing",
	}
}

func TestCreditsExhaustedRendersAndSends(t *testing.T) {
	mailer := &captureMailer{}
	n, err := NewWithMailer(mailer, testNotifyConfig())
	require.NoError(t, err)

	require.NoError(t, n.CreditsExhausted(context.Background(), "sam@startup.io", "Sam"))
	require.Len(t, mailer.inputs, 1)

	in := mailer.inputs[0]
	assert.Equal(t, "hello@foundercrm.io", *in.FromEmailAddress)
	assert.Equal(t, []string{"sam@startup.io"}, in.Destination.ToAddresses)
	assert.Equal(t, exhaustedSubject, *in.Content.Simple.Subject.Data)

	body := *in.Content.Simple.Body.Html.Data
	assert.Contains(t, body, "Hi Sam,")
	assert.Contains(t, body, "https://foundercrm.io/billing")
}

func TestCreditsExhaustedFallbackName(t *testing.T) {
	mailer := &captureMailer{}
	n, err := NewWithMailer(mailer, testNotifyConfig())
	require.NoError(t, err)

	require.NoError(t, n.CreditsExhausted(context.Background(), "sam@startup.io", ""))
	assert.Contains(t, *mailer.inputs[0].Content.Simple.Body.Html.Data, "Hi there,")
}

func TestCreditsExhaustedDisabledIsNoOp(t *testing.T) {
	mailer := &captureMailer{}
	cfg := testNotifyConfig()
	cfg.Enabled = false
	n, err := NewWithMailer(mailer, cfg)
	require.NoError(t, err)

	require.NoError(t, n.CreditsExhausted(context.Background(), "sam@startup.io", "Sam"))
	assert.Empty(t, mailer.inputs)
}

func TestCreditsExhaustedRequiresRecipient(t *testing.T) {
	n, err := NewWithMailer(&captureMailer{}, testNotifyConfig())
	require.NoError(t, err)

	assert.Error(t, n.CreditsExhausted(context.Background(), "", "Sam"))
}
