package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/email"
)

func postmarkConfig() email.Config {
	return email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "no-reply@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmark_Config(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmark(postmarkConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *email.Config)
	}{
		{name: "no server token", mutate: func(c *email.Config) { c.PostmarkServerToken = "" }},
		{name: "bad sender", mutate: func(c *email.Config) { c.SenderEmail = "nope" }},
		{name: "bad support", mutate: func(c *email.Config) { c.SupportEmail = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := postmarkConfig()
			tt.mutate(&cfg)
			_, err := email.NewPostmark(cfg)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
		})
	}
}

func TestPostmark_Send(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"To":"owner@example.com","MessageID":"m-1","ErrorCode":0,"Message":"OK"}`))
	}))
	defer srv.Close()

	sender, err := email.NewPostmark(postmarkConfig(), email.WithPostmarkBaseURL(srv.URL))
	require.NoError(t, err)

	err = sender.Send(context.Background(), email.Message{
		To:       "owner@example.com",
		Subject:  "Approved",
		HTMLBody: "<p>ok</p>",
		Tag:      "messaging-approved",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got["To"])
	assert.Equal(t, "no-reply@example.com", got["From"])
	assert.Equal(t, "support@example.com", got["ReplyTo"])
	assert.Equal(t, "messaging-approved", got["Tag"])
}

func TestPostmark_SendRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"Inactive recipient"}`))
	}))
	defer srv.Close()

	sender, err := email.NewPostmark(postmarkConfig(), email.WithPostmarkBaseURL(srv.URL))
	require.NoError(t, err)

	err = sender.Send(context.Background(), email.Message{To: "owner@example.com", Subject: "s", HTMLBody: "b"})
	assert.ErrorIs(t, err, email.ErrFailedToSendEmail)

	err = sender.Send(context.Background(), email.Message{To: "bad", Subject: "s", HTMLBody: "b"})
	assert.ErrorIs(t, err, email.ErrInvalidMessage)
}
