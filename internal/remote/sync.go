package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"memorial/internal"
	"memorial/internal/config"
	"memorial/internal/input"
	"memorial/internal/logging"
	"memorial/internal/pipeline"
	"memorial/internal/storage"
)

const (
	metaETag     = "remote.etag"
	metaLastHash = "remote.last_hash"
	metaLastSync = "remote.last_sync"
	metaLastRun  = "remote.last_run"
)

type SyncService struct {
	db        *storage.DB
	client    *Client
	cfg       config.Config
	processor *pipeline.ProcessingService
	logger    *zap.Logger
}

type SyncResult struct {
	Changed bool
	RawPath string
	Run     pipeline.RunResult
}

func NewSyncService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, logger *zap.Logger) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg, processor: processor, logger: logging.OrNop(logger)}
}

// Refresh downloads the published roster and parses it when its content
// changed since the last sync. force ignores the stored ETag and hash.
func (s *SyncService) Refresh(ctx context.Context, force bool) (SyncResult, error) {
	etag := ""
	if !force {
		if v, err := s.db.GetMetadata(metaETag); err != nil {
			return SyncResult{}, err
		} else if v != nil {
			etag = *v
		}
	}

	dl, err := s.client.Fetch(ctx, etag)
	if err != nil {
		return SyncResult{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if dl.NotModified {
		s.logger.Info("remote roster not modified", zap.String("etag", etag))
		return SyncResult{}, s.db.SetMetadata(metaLastSync, now)
	}

	sum := sha256.Sum256(dl.Body)
	hash := hex.EncodeToString(sum[:])
	if !force {
		last, err := s.db.GetMetadata(metaLastHash)
		if err != nil {
			return SyncResult{}, err
		}
		if last != nil && *last == hash {
			s.logger.Info("remote roster unchanged", zap.String("hash", hash))
			if err := s.saveETag(dl.ETag); err != nil {
				return SyncResult{}, err
			}
			return SyncResult{}, s.db.SetMetadata(metaLastSync, now)
		}
	}

	rawPath, err := s.storeRaw(hash, dl)
	if err != nil {
		return SyncResult{}, err
	}

	enc, err := input.ParseEncoding(s.cfg.InputEncoding)
	if err != nil {
		return SyncResult{}, err
	}
	doc, err := input.LoadBytes(dl.Name, dl.Body, enc)
	if err != nil {
		return SyncResult{}, err
	}
	doc.Kind = internal.SourceRemote
	run, err := s.processor.ProcessDocument(doc, s.cfg.RemoteCSVURL, nil)
	if err != nil {
		return SyncResult{}, err
	}

	for key, value := range map[string]string{
		metaLastHash: hash,
		metaLastSync: now,
		metaLastRun:  fmt.Sprintf("%d", run.RunID),
	} {
		if err := s.db.SetMetadata(key, value); err != nil {
			return SyncResult{}, err
		}
	}
	if err := s.saveETag(dl.ETag); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Changed: true, RawPath: rawPath, Run: run}, nil
}

func (s *SyncService) saveETag(etag string) error {
	if etag == "" {
		return nil
	}
	return s.db.SetMetadata(metaETag, etag)
}

func (s *SyncService) storeRaw(hash string, dl Download) (string, error) {
	dir := filepath.Join(s.cfg.RawDir, "remote")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	rawPath := filepath.Join(dir, hash+filepath.Ext(dl.Name))
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, dl.Body, 0o644); err != nil {
			return "", err
		}
	}
	return rawPath, nil
}
