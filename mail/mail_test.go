package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "u@x.com", "Verification email", "Your verification code is 123456."))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"u@x.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Verification email\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nYour verification code is 123456."))
}

func TestSMTPSenderRejects(t *testing.T) {
	called := false
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "noreply@example.com"})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	assert.ErrorIs(t, s.Send(context.Background(), "u@x.com\r\nBcc: evil@x.com", "s", "b"), ErrHeaderInjection)
	assert.ErrorIs(t, s.Send(context.Background(), "u@x.com", "s\nX-Evil: 1", "b"), ErrHeaderInjection)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, "u@x.com", "s", "b"), context.Canceled)
	assert.False(t, called)

	assert.ErrorIs(t, NewSMTPSender(SMTPConfig{}).Send(context.Background(), "u@x.com", "s", "b"), ErrNotConfigured)
}

func TestSMTPSenderPropagatesRelayError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "noreply@example.com"})
	relayErr := errors.New("550 mailbox unavailable")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return relayErr }

	assert.ErrorIs(t, s.Send(context.Background(), "u@x.com", "s", "b"), relayErr)
}

func TestLogSenderHidesBodyByDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core), false)

	require.NoError(t, s.Send(context.Background(), "u@x.com", "Verification email", "code 123456"))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "u@x.com", fields["to"])
	assert.NotContains(t, fields, "body")

	s.IncludeBody = true
	require.NoError(t, s.Send(context.Background(), "u@x.com", "Verification email", "code 123456"))
	assert.Equal(t, "code 123456", logs.All()[1].ContextMap()["body"])
}
