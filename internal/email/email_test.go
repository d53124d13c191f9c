package email

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	response *rest.Response
	err      error
	sent     []*mail.SGMailV3
}

func (f *fakeSender) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return f.response, f.err
}

func TestNewTransport_RequiresAPIKey(t *testing.T) {
	transport, err := NewTransport("", "from@example.com", "Helpdesk")
	assert.Nil(t, transport)
	assert.Error(t, err)
}

func TestTransport_Send(t *testing.T) {
	tests := []struct {
		name      string
		response  *rest.Response
		err       error
		wantError string
	}{
		{
			name:     "accepted",
			response: &rest.Response{StatusCode: 202},
		},
		{
			name:      "api error status",
			response:  &rest.Response{StatusCode: 401, Body: "unauthorized"},
			wantError: "SendGrid API error: status 401",
		},
		{
			name:      "transport error",
			err:       errors.New("connection reset"),
			wantError: "failed to send email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSender{response: tt.response, err: tt.err}
			transport := &Transport{client: fake, fromEmail: "from@example.com", fromName: "Helpdesk"}

			err := transport.Send(context.Background(), Message{
				ToEmail:   "agent@example.com",
				ToName:    "Agent",
				Subject:   "VIP Customer: Vera",
				PlainText: "Original message:\nHello",
				HTML:      "<p>Original message:</p><p>Hello</p>",
			})

			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, fake.sent, 1)
			assert.Equal(t, "VIP Customer: Vera", fake.sent[0].Subject)
			assert.Equal(t, "agent@example.com", fake.sent[0].Personalizations[0].To[0].Address)
		})
	}
}

func TestTransport_SendRequiresRecipient(t *testing.T) {
	fake := &fakeSender{response: &rest.Response{StatusCode: 202}}
	transport := &Transport{client: fake}

	err := transport.Send(context.Background(), Message{Subject: "hi"})
	assert.Error(t, err)
	assert.Empty(t, fake.sent)
}
