// Package mailbox implements the IMAP/SMTP boundary. Connections are dialed
// per call; QQ-mail style auth codes stand in for passwords.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// lookbackWindow bounds the unseen search so an abandoned inbox does not
// flood the first poll.
const lookbackWindow = 8 * time.Hour

// Adapter implements out.MailboxPort.
type Adapter struct {
	imapAddr string
	smtpAddr string
	log      zerolog.Logger
}

// Config holds the mail server endpoints.
type Config struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// NewAdapter creates the adapter.
func NewAdapter(cfg Config, log zerolog.Logger) *Adapter {
	return &Adapter{
		imapAddr: fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		smtpAddr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		log:      log.With().Str("component", "mailbox").Logger(),
	}
}

func (a *Adapter) dial(creds out.MailboxCredentials) (*client.Client, error) {
	c, err := client.DialTLS(a.imapAddr, &tls.Config{ServerName: strings.Split(a.imapAddr, ":")[0]})
	if err != nil {
		return nil, apperr.ExternalError("imap", err)
	}
	if err := c.Login(creds.Address, creds.AuthCode); err != nil {
		c.Logout()
		return nil, apperr.ExternalError("imap", err).WithDetail("address", creds.Address)
	}
	return c, nil
}

// CheckLogin verifies the credentials with a login round trip.
func (a *Adapter) CheckLogin(ctx context.Context, creds out.MailboxCredentials) error {
	c, err := a.dial(creds)
	if err != nil {
		return err
	}
	defer c.Logout()
	if _, err := c.Select("INBOX", true); err != nil {
		return apperr.ExternalError("imap", err)
	}
	return nil
}

// FetchUnseen returns up to max unseen messages from the lookback window,
// oldest first. Own sends and messages without a usable body are skipped.
func (a *Adapter) FetchUnseen(ctx context.Context, creds out.MailboxCredentials, max int) ([]*domain.Email, error) {
	c, err := a.dial(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, apperr.ExternalError("imap", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-lookbackWindow)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, apperr.ExternalError("imap", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var emails []*domain.Email
	for msg := range messages {
		em := a.parseMessage(msg, section, creds.Address)
		if em != nil {
			emails = append(emails, em)
		}
	}
	if err := <-done; err != nil {
		return nil, apperr.ExternalError("imap", err)
	}
	return emails, nil
}

// MarkRead flags a message seen by its UID. Repeat calls are no-ops on the
// server side.
func (a *Adapter) MarkRead(ctx context.Context, creds out.MailboxCredentials, seq string) error {
	uid, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return apperr.InvalidInput("sequence", "not numeric")
	}

	c, err := a.dial(creds)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return apperr.ExternalError("imap", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return apperr.ExternalError("imap", err)
	}
	return nil
}

func (a *Adapter) parseMessage(msg *imap.Message, section *imap.BodySectionName, ownAddress string) *domain.Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	sender := envelopeSender(msg.Envelope)
	if sender == "" || !strings.Contains(sender, "@") {
		return nil
	}
	if strings.Contains(sender, ownAddress) {
		return nil // own send
	}

	body := a.extractBody(msg.GetBody(section))
	if strings.TrimSpace(body) == "" {
		return nil
	}

	id := msg.Envelope.MessageId
	if id == "" {
		id = fmt.Sprintf("email_%d", msg.Uid)
	}

	received := msg.Envelope.Date
	if received.IsZero() {
		received = time.Now()
	}

	return &domain.Email{
		ID:         id,
		MessageID:  msg.Envelope.MessageId,
		Sender:     sender,
		Subject:    msg.Envelope.Subject,
		Body:       body,
		MailboxSeq: strconv.FormatUint(uint64(msg.Uid), 10),
		ReceivedAt: received,
		Status:     domain.StatusPending,
	}
}

// envelopeSender extracts the bare address, preferring the angle-bracket
// form when present.
func envelopeSender(env *imap.Envelope) string {
	if len(env.From) == 0 {
		return ""
	}
	full := env.From[0].Address()
	if m := angleAddrRe.FindStringSubmatch(full); m != nil {
		return m[1]
	}
	return strings.TrimSpace(full)
}

var angleAddrRe = regexp.MustCompile(`<([^>]+)>`)

// extractBody prefers text/plain; when only HTML exists the markup is
// stripped to text.
func (a *Adapter) extractBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.log.Debug().Err(err).Msg("error reading mail part")
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := h.ContentType()
		content, err := io.ReadAll(io.LimitReader(p.Body, 1<<20))
		if err != nil {
			continue
		}
		switch ctype {
		case "text/plain":
			if plain == "" {
				plain = string(content)
			}
		case "text/html":
			if html == "" {
				html = string(content)
			}
		}
	}

	if plain != "" {
		return plain
	}
	return stripHTML(html)
}

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlMarkupRe = regexp.MustCompile(`<[^>]+>`)
)

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = htmlMarkupRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return strings.TrimSpace(s)
}

var _ out.MailboxPort = (*Adapter)(nil)
