package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendEmail(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{Host: "smtp.example.com", Port: 587, Username: "bot", Password: "pw", From: "bot@example.com"}, &log)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	require.NoError(t, m.SendEmail(context.Background(), "user@example.com", "Hello\r\nBcc: evil@example.com", "Body text"))
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, []string{"user@example.com"}, gotTo)
	require.Contains(t, gotMsg, "Subject: Hello  Bcc: evil@example.com\r\n")
	require.NotContains(t, gotMsg, "\r\nBcc:")
	require.Contains(t, gotMsg, "\r\n\r\nBody text")
}

func TestSendEmail_Failure(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{Host: "localhost", Port: 25, From: "bot@example.com"}, &log)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.SendEmail(context.Background(), "user@example.com", "s", "b")
	require.ErrorContains(t, err, "connection refused")
}
