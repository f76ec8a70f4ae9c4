package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memorial/internal"
	"memorial/internal/config"
	"memorial/internal/input"
	"memorial/internal/logging"
	"memorial/internal/parser"
	"memorial/internal/storage"
)

const (
	MailStatusFetched   = "fetched"
	MailStatusProcessed = "processed"
	MailStatusSkipped   = "skipped"
	MailStatusExported  = "exported"
)

type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	parser *parser.Parser
	logger *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, p *parser.Parser, logger *zap.Logger) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, parser: p, logger: logging.OrNop(logger)}
}

type RunResult struct {
	RunID       int64
	TraceID     string
	Source      string
	Records     []internal.SoldierRecord
	Diagnostics internal.Diagnostics
}

type MailResult struct {
	MailID  int
	Skipped bool
	Runs    []RunResult
}

func (r MailResult) Emitted() int {
	n := 0
	for _, run := range r.Runs {
		n += len(run.Records)
	}
	return n
}

func (s *ProcessingService) ProcessFile(path string) (RunResult, error) {
	start := time.Now()
	enc, err := input.ParseEncoding(s.cfg.InputEncoding)
	if err != nil {
		return RunResult{}, err
	}
	doc, err := input.Load(path, enc)
	if err != nil {
		return RunResult{}, err
	}
	if doc.Repaired {
		s.logger.Warn("repaired mis-decoded input", zap.String("source", path))
	}
	return s.processDocument(doc, path, nil, start)
}

// ProcessDocument parses an already loaded roster and stores the run.
func (s *ProcessingService) ProcessDocument(doc input.Document, source string, mailID *int) (RunResult, error) {
	return s.processDocument(doc, source, mailID, time.Now())
}

func (s *ProcessingService) processDocument(doc input.Document, source string, mailID *int, start time.Time) (RunResult, error) {
	traceID := uuid.NewString()
	loadMs := float64(time.Since(start).Milliseconds())

	parseStart := time.Now()
	res := s.parser.Parse(doc.Text)
	parseMs := float64(time.Since(parseStart).Milliseconds())

	kind := doc.Kind
	if mailID != nil {
		kind = internal.SourceMail
	}
	timings, _ := json.Marshal(map[string]float64{
		"loadMs":  loadMs,
		"parseMs": parseMs,
		"totalMs": float64(time.Since(start).Milliseconds()),
	})
	runID, err := s.db.InsertRun(internal.RunSummary{
		TraceID:     traceID,
		Source:      source,
		SourceKind:  kind,
		Strategy:    string(s.parser.Strategy()),
		MailID:      mailID,
		TimingsJSON: string(timings),
	}, res.Records, res.Diagnostics)
	if err != nil {
		return RunResult{}, fmt.Errorf("store run for %s: %w", source, err)
	}

	d := res.Diagnostics
	s.logger.Info("run stored",
		zap.Int64("run", runID),
		zap.String("trace", traceID),
		zap.String("source", source),
		zap.String("strategy", string(s.parser.Strategy())),
		zap.Int("rawRecords", d.RawRecords),
		zap.Int("emitted", len(res.Records)),
		zap.Int("dropped", d.Dropped),
		zap.Int("unknownName", d.UnknownName),
		zap.Int("unknownRank", d.UnknownRank),
		zap.Int("unknownUnit", d.UnknownUnit),
	)
	for _, rec := range d.Defaulted {
		s.logger.Debug("field defaulted",
			zap.String("trace", traceID),
			zap.Int("record", rec.Index),
			zap.String("field", string(rec.Field)),
			zap.String("snippet", rec.Snippet),
		)
	}

	return RunResult{
		RunID:       runID,
		TraceID:     traceID,
		Source:      source,
		Records:     res.Records,
		Diagnostics: d,
	}, nil
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (MailResult, error) {
	mail, err := s.db.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return MailResult{}, err
	}
	if mail == nil {
		return MailResult{}, fmt.Errorf("mail not found: provider=%s messageId=%s", provider, messageID)
	}
	return s.ProcessMail(*mail)
}

// ProcessPending processes fetched mails and returns how many mails were
// handled and how many records they produced.
func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListMailsByStatus(MailStatusFetched, provider, limit)
	if err != nil {
		return 0, 0, err
	}
	processedMails := 0
	emitted := 0
	for _, mail := range pending {
		res, err := s.ProcessMail(mail)
		if err != nil {
			return processedMails, emitted, err
		}
		processedMails++
		emitted += res.Emitted()
	}
	return processedMails, emitted, nil
}

func (s *ProcessingService) ProcessMail(mail internal.MailRow) (MailResult, error) {
	raw, err := os.ReadFile(mail.RawRef)
	if err != nil {
		return MailResult{}, err
	}
	enc, err := input.ParseEncoding(s.cfg.InputEncoding)
	if err != nil {
		return MailResult{}, err
	}

	roster, err := ExtractRosterFromMailRaw(raw, enc, s.logger)
	if err != nil {
		return MailResult{}, err
	}

	detect := DetectRosterMail(firstNonEmpty(roster.Subject, mail.Subject), roster.Text, roster.HTML, roster.AttachmentNames)
	if err := s.db.ClearMailRuns(mail.ID); err != nil {
		return MailResult{}, err
	}

	if !detect.IsRoster || len(roster.Documents) == 0 {
		s.logger.Info("mail skipped",
			zap.Int("mail", mail.ID),
			zap.Float64("score", detect.Score),
			zap.Int("documents", len(roster.Documents)),
		)
		if err := s.db.UpdateMailStatus(mail.ID, MailStatusSkipped); err != nil {
			return MailResult{}, err
		}
		return MailResult{MailID: mail.ID, Skipped: true}, nil
	}

	out := MailResult{MailID: mail.ID}
	mailID := mail.ID
	for _, doc := range roster.Documents {
		run, err := s.ProcessDocument(doc, mail.MessageID+"/"+doc.Name, &mailID)
		if err != nil {
			return MailResult{}, err
		}
		out.Runs = append(out.Runs, run)
	}

	if err := s.db.UpdateMailStatus(mail.ID, MailStatusProcessed); err != nil {
		return MailResult{}, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
