package listener

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memorial/internal/config"
	"memorial/internal/connectors"
	gmailconnector "memorial/internal/connectors/gmail"
	imapconnector "memorial/internal/connectors/imap"
	"memorial/internal/logging"
	"memorial/internal/pipeline"
	"memorial/internal/remote"
	"memorial/internal/storage"
)

const exportScanLimit = 200

type Service struct {
	db        *storage.DB
	cfg       config.Config
	provider  string
	connector connectors.MailConnector
	processor *pipeline.ProcessingService
	sync      *remote.SyncService
	logger    *zap.Logger

	// work serializes parsing and storage between the poll loop and the inbox watcher.
	work sync.Mutex
}

type Option func(*Service)

// WithConnector replaces the connector selected by LISTENER_PROVIDER.
func WithConnector(c connectors.MailConnector) Option {
	return func(s *Service) { s.connector = c }
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, logger *zap.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		db:        db,
		cfg:       cfg,
		provider:  strings.ToLower(strings.TrimSpace(cfg.ListenerProvider)),
		processor: processor,
		logger:    logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.connector == nil {
		c, err := MakeConnector(s.provider, cfg)
		if err != nil {
			return nil, err
		}
		s.connector = c
	}
	if strings.TrimSpace(cfg.RemoteCSVURL) != "" {
		s.sync = remote.NewSyncService(db, cfg, processor, logger)
	}
	return s, nil
}

// Run polls until ctx is cancelled. The inbox watcher, when enabled, runs
// alongside the poll loop and is stopped before Run returns.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.ListenerWatchInbox {
		w, err := newInboxWatcher(s)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Close()
			return err
		}
		defer w.Stop()
	}

	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	s.work.Lock()
	defer s.work.Unlock()

	var errs []error
	fetched, processed := 0, 0
	if s.connector != nil {
		fetchService := connectors.NewFetchService(s.db, s.cfg.RawDir, s.connector, s.logger)
		res, err := fetchService.FetchAndStore(ctx, s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch: %w", err))
		}
		fetched = res.Fetched

		processed, _, err = s.processor.ProcessPending(s.cfg.ListenerProcessBatch, s.provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("process: %w", err))
		}

		if s.cfg.ListenerAutoExport {
			if err := s.exportProcessed(); err != nil {
				errs = append(errs, fmt.Errorf("export: %w", err))
			}
		}
	}

	if s.sync != nil {
		res, err := s.sync.Refresh(ctx, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("remote: %w", err))
		} else if res.Changed && s.cfg.ListenerAutoExport {
			if _, _, err := pipeline.ExportRun(s.db, res.Run.RunID, s.exportDir()); err != nil {
				errs = append(errs, fmt.Errorf("export remote run: %w", err))
			}
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", s.provider),
		zap.Int("fetched", fetched),
		zap.Int("processed", processed),
	)
	return errors.Join(errs...)
}

// exportProcessed writes every run of each processed mail and marks the mail exported.
func (s *Service) exportProcessed() error {
	mails, err := s.db.ListMailsByStatus(pipeline.MailStatusProcessed, s.provider, exportScanLimit)
	if err != nil {
		return err
	}

	for _, mail := range mails {
		runs, err := s.db.ListRunsForMail(mail.ID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			continue
		}
		for _, run := range runs {
			xlsxPath, _, err := pipeline.ExportRun(s.db, run.ID, s.exportDir())
			if err != nil {
				return err
			}
			s.logger.Info("run exported", zap.Int("mail", mail.ID), zap.Int64("run", run.ID), zap.String("path", xlsxPath))
		}
		if err := s.db.UpdateMailStatus(mail.ID, pipeline.MailStatusExported); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) exportDir() string {
	return filepath.Join(s.cfg.OutputDir, "listener")
}

// MakeConnector returns nil for provider "none": the listener then only
// watches the inbox directory and the remote roster.
func MakeConnector(provider string, cfg config.Config) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
