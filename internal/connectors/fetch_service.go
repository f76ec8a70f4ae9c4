package connectors

import (
	"context"

	"go.uber.org/zap"

	"memorial/internal/logging"
	"memorial/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	New     int
}

func NewFetchService(db *storage.DB, rawDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawDir),
		logger:    logging.OrNop(logger),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, created, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		res.Stored++
		if created {
			res.New++
		}
		s.logger.Debug("mail stored",
			zap.Int("mail", row.ID),
			zap.String("provider", row.Provider),
			zap.String("messageId", row.MessageID),
			zap.Bool("new", created),
		)
	}

	return res, nil
}
