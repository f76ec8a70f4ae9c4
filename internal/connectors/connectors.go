package connectors

import (
	"context"

	"memorial/internal"
)

// MailConnector pulls raw roster mails from a mailbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
