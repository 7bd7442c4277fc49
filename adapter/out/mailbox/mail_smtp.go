package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// SendReply submits a threaded reply over SMTP with implicit TLS.
func (a *Adapter) SendReply(ctx context.Context, creds out.MailboxCredentials, reply out.OutgoingReply) error {
	msg, err := buildReplyMessage(creds.Address, reply)
	if err != nil {
		return err
	}

	host := strings.Split(a.smtpAddr, ":")[0]
	c, err := smtp.DialTLS(a.smtpAddr, &tls.Config{ServerName: host})
	if err != nil {
		return apperr.ExternalError("smtp", err)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", creds.Address, creds.AuthCode)); err != nil {
		return apperr.ExternalError("smtp", err).WithDetail("address", creds.Address)
	}
	if err := c.SendMail(creds.Address, []string{reply.To}, bytes.NewReader(msg)); err != nil {
		return apperr.ExternalError("smtp", err)
	}

	a.log.Info().Str("to", reply.To).Str("subject", reply.Subject).Msg("reply sent")
	return nil
}

func buildReplyMessage(from string, reply out.OutgoingReply) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: reply.To}})
	h.SetSubject(replySubject(reply.Subject))
	if reply.InReplyTo != "" {
		h.Set("In-Reply-To", reply.InReplyTo)
	}
	if reply.References != "" {
		h.Set("References", reply.References)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, apperr.Internal("build reply message").WithError(err)
	}
	if _, err := w.Write([]byte(reply.Body)); err != nil {
		w.Close()
		return nil, apperr.Internal("build reply message").WithError(err)
	}
	if err := w.Close(); err != nil {
		return nil, apperr.Internal("build reply message").WithError(err)
	}
	return buf.Bytes(), nil
}

// replySubject prefixes "Re: " once.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
