package sendemail_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewater/conveyor/pkg/actions/sendemail"
	"github.com/tidewater/conveyor/pkg/gateway"
	"github.com/tidewater/conveyor/pkg/models"
)

type fakeMailer struct {
	sent []gateway.EmailMessage
	err  error
}

func (m *fakeMailer) SendEmail(_ context.Context, message gateway.EmailMessage) error {
	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, message)

	return nil
}

func TestNewActionRecipientParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		to   any
		want []string
	}{
		{"single string", "a@example.com", []string{"a@example.com"}},
		{"json array", []any{"a@example.com", "b@example.com"}, []string{"a@example.com", "b@example.com"}},
		{"string slice", []string{"c@example.com"}, []string{"c@example.com"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			action, err := sendemail.NewAction(map[string]any{"to": testCase.to, "subject": "hi"}, &fakeMailer{})
			require.NoError(t, err)
			assert.Equal(t, testCase.want, action.To)
		})
	}
}

func TestNewActionRequiresRecipient(t *testing.T) {
	t.Parallel()

	_, err := sendemail.NewAction(map[string]any{"subject": "hi"}, &fakeMailer{})
	require.ErrorIs(t, err, sendemail.ErrRecipientRequired)

	_, err = sendemail.NewAction(map[string]any{"to": []any{}, "subject": "hi"}, &fakeMailer{})
	require.ErrorIs(t, err, sendemail.ErrRecipientRequired)
}

func TestExecuteDeliversThroughMailer(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	action, err := sendemail.NewAction(map[string]any{
		"to":      "owner@example.com",
		"subject": "New qualified lead",
		"body":    "A lead crossed the threshold.",
	}, mailer)
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), models.ExecutionContext{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "New qualified lead", mailer.sent[0].Subject)
	assert.Equal(t, []string{"owner@example.com"}, result["recipients"])
}

func TestExecuteSurfacesMailerFailure(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{err: errors.New("smtp relay down")}
	action, err := sendemail.NewAction(map[string]any{"to": "x@example.com", "subject": "s"}, mailer)
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), models.ExecutionContext{}, slog.New(slog.DiscardHandler))
	require.ErrorContains(t, err, "smtp relay down")
}
