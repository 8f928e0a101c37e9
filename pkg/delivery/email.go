package delivery

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
)

// Attachment is one file attached to the delivery notification email.
type Attachment struct {
	Filename string
	Content  []byte
}

// SendNotification emails the run's two CSV exports to recipient using
// net/smtp. There is no ecosystem mail library anywhere in the retrieval
// pack this module was grounded on, so this is a deliberate stdlib fallback.
func SendNotification(cfg config.NotificationConfig, recipient, subject, body string, attachments []Attachment) error {
	msg, err := buildMIMEMessage(cfg.FromAddr, recipient, subject, body, attachments)
	if err != nil {
		return fmt.Errorf("building notification email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	auth := smtpAuth(cfg)
	if err := smtp.SendMail(addr, auth, cfg.FromAddr, []string{recipient}, msg); err != nil {
		return fmt.Errorf("sending notification email: %w", err)
	}
	return nil
}

func smtpAuth(cfg config.NotificationConfig) smtp.Auth {
	if cfg.Username == "" {
		return nil
	}
	username := os.Getenv(cfg.Username)
	password := os.Getenv(cfg.Password)
	if username == "" {
		return nil
	}
	return smtp.PlainAuth("", username, password, cfg.SMTPHost)
}

func buildMIMEMessage(from, to, subject, body string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	bodyHeader := textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}}
	bodyPart, err := w.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		header := textproto.MIMEHeader{
			"Content-Type":              {"text/csv"},
			"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, a.Filename)},
			"Content-Transfer-Encoding": {"8bit"},
		}
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(a.Content); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
