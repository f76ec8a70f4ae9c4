package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"memorial/internal"
	"memorial/internal/storage"
)

type MailStoreService struct {
	db      *storage.DB
	mailDir string
}

func NewMailStoreService(db *storage.DB, rawDir string) *MailStoreService {
	return &MailStoreService{db: db, mailDir: filepath.Join(rawDir, "mail")}
}

// Store writes the raw message under its content hash and upserts the mail row.
// Already known mails keep their processing status.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.MailRow, bool, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.mailDir, 0o755); err != nil {
		return internal.MailRow{}, false, err
	}

	rawPath := filepath.Join(s.mailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.MailRow{}, false, err
		}
	}

	existing, err := s.db.GetMailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return internal.MailRow{}, false, err
	}
	row, err := s.db.UpsertMail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
	if err != nil {
		return internal.MailRow{}, false, err
	}
	return row, existing == nil, nil
}
