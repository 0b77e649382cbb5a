package email_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dialbill/pkg/email"
)

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	valid := email.Message{To: "owner@example.com", Subject: "Hi", HTMLBody: "<p>hi</p>"}

	tests := []struct {
		name    string
		mutate  func(m *email.Message)
		wantErr bool
	}{
		{name: "valid", mutate: func(*email.Message) {}},
		{name: "display name address", mutate: func(m *email.Message) { m.To = "Owner <owner@example.com>" }},
		{name: "missing recipient", mutate: func(m *email.Message) { m.To = "  " }, wantErr: true},
		{name: "malformed recipient", mutate: func(m *email.Message) { m.To = "not-an-address" }, wantErr: true},
		{name: "missing subject", mutate: func(m *email.Message) { m.Subject = "" }, wantErr: true},
		{name: "missing body", mutate: func(m *email.Message) { m.HTMLBody = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}
