package delivery

import (
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
)

func TestBuildMIMEMessageIncludesBodyAndAttachments(t *testing.T) {
	attachments := []Attachment{
		{Filename: "companies.csv", Content: []byte("a,b\n1,2\n")},
		{Filename: "contacts.csv", Content: []byte("c,d\n3,4\n")},
	}

	msg, err := buildMIMEMessage("leadpipe@example.com", "ops@example.com", "Run complete", "10 companies found", attachments)
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(msg)))
	require.NoError(t, err)

	subject, err := (&mime.WordDecoder{}).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Run complete", subject)
	assert.Equal(t, "leadpipe@example.com", parsed.Header.Get("From"))

	_, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	mr := multipart.NewReader(parsed.Body, params["boundary"])

	var filenames []string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		if fn := part.FileName(); fn != "" {
			filenames = append(filenames, fn)
		}
	}
	assert.ElementsMatch(t, []string{"companies.csv", "contacts.csv"}, filenames)
}

func TestSMTPAuthNilWhenUsernameUnconfigured(t *testing.T) {
	auth := smtpAuth(config.NotificationConfig{SMTPHost: "localhost"})
	assert.Nil(t, auth)
}

func TestSMTPAuthNilWhenEnvVarUnset(t *testing.T) {
	auth := smtpAuth(config.NotificationConfig{SMTPHost: "localhost", Username: "LEADPIPE_SMTP_USER_DOES_NOT_EXIST"})
	assert.Nil(t, auth)
}
