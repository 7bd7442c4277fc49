// Package out defines the outbound ports of the core.
package out

import (
	"context"

	"mailagent/core/domain"
)

// MailboxCredentials identifies one user's mailbox account.
type MailboxCredentials struct {
	Address  string
	AuthCode string
}

// OutgoingReply carries everything needed to answer a message in-thread.
type OutgoingReply struct {
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References string
}

// MailboxPort is the IMAP/SMTP boundary. Implementations dial per call;
// the core never holds a connection.
type MailboxPort interface {
	// FetchUnseen returns up to max unseen messages received within the
	// lookback window, oldest first. Own sends and empty bodies are skipped.
	FetchUnseen(ctx context.Context, creds MailboxCredentials, max int) ([]*domain.Email, error)

	// SendReply submits a reply over SMTP.
	SendReply(ctx context.Context, creds MailboxCredentials, reply OutgoingReply) error

	// MarkRead flags the message identified by its mailbox sequence as seen.
	// Non-numeric sequences are rejected.
	MarkRead(ctx context.Context, creds MailboxCredentials, seq string) error

	// CheckLogin verifies the credentials by performing a login round trip.
	CheckLogin(ctx context.Context, creds MailboxCredentials) error
}
