package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"memorial/internal"
	"memorial/internal/config"
	"memorial/internal/pipeline"
	"memorial/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	calls    int
}

func (f *fakeConnector) FetchInbox(_ context.Context, _ string, _ int) ([]internal.FetchedMailMessage, error) {
	f.calls++
	return f.messages, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	tmp := t.TempDir()
	cfg.DBPath = filepath.Join(tmp, "app.db")
	cfg.RawDir = filepath.Join(tmp, "raw")
	cfg.OutputDir = filepath.Join(tmp, "out")
	cfg.InboxDir = filepath.Join(tmp, "inbox")
	cfg.RulesPath = ""
	cfg.ParseStrategy = "structured"
	cfg.InputEncoding = "auto"
	cfg.RemoteCSVURL = ""
	cfg.ListenerProvider = "none"
	cfg.ListenerLabel = "INBOX"
	cfg.ListenerIntervalSec = 60
	cfg.ListenerFetchMax = 10
	cfg.ListenerProcessBatch = 10
	cfg.ListenerAutoExport = true
	cfg.ListenerWatchInbox = false
	return cfg
}

func newTestService(t *testing.T, cfg config.Config, opts ...Option) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := pipeline.NewParser(cfg, "")
	require.NoError(t, err)
	svc, err := NewService(db, cfg, pipeline.NewProcessingService(db, cfg, p, nil), nil, opts...)
	require.NoError(t, err)
	return svc, db
}

func copyFixture(t *testing.T, src, dst string) {
	t.Helper()
	blob, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, blob, 0o644))
}

func TestRunCycleFetchesProcessesAndExportsMail(t *testing.T) {
	cfg := testConfig(t)
	cfg.ListenerProvider = "imap"

	raw, err := os.ReadFile(filepath.Join("..", "pipeline", "testdata", "roster_mail.eml"))
	require.NoError(t, err)
	conn := &fakeConnector{messages: []internal.FetchedMailMessage{{
		Provider:   "imap",
		MessageID:  "<roster-1@example.com>",
		Subject:    "רשימת חללים מעודכנת",
		From:       "desk@example.com",
		ReceivedAt: "2026-02-08T07:00:00Z",
		Raw:        raw,
	}}}
	svc, db := newTestService(t, cfg, WithConnector(conn))

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, conn.calls)

	mail, err := db.GetMailByProviderMessageID("imap", "<roster-1@example.com>")
	require.NoError(t, err)
	require.NotNil(t, mail)
	assert.Equal(t, pipeline.MailStatusExported, mail.Status)

	runs, err := db.ListRunsForMail(mail.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Emitted)

	exported, err := filepath.Glob(filepath.Join(cfg.OutputDir, "listener", "*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, exported, 1)

	// A second cycle sees the same message but does not re-export it.
	require.NoError(t, svc.runCycle(context.Background()))
	runs, err = db.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestInboxWatcherParsesAndMovesFiles(t *testing.T) {
	cfg := testConfig(t)
	svc, db := newTestService(t, cfg)
	fixture := filepath.Join("..", "parser", "testdata", "roster.csv")

	copyFixture(t, fixture, filepath.Join(cfg.InboxDir, "waiting.csv"))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "notes.pdf"), []byte("%PDF"), 0o644))

	w, err := newInboxWatcher(svc)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Files present at start are swept synchronously.
	assert.FileExists(t, filepath.Join(cfg.InboxDir, processedSubdir, "waiting.csv"))
	assert.FileExists(t, filepath.Join(cfg.InboxDir, "notes.pdf"))
	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Emitted)

	copyFixture(t, fixture, filepath.Join(cfg.InboxDir, "dropped.csv"))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "broken.xlsx"), []byte("not a workbook"), 0o644))

	require.Eventually(t, func() bool {
		_, okDropped := os.Stat(filepath.Join(cfg.InboxDir, processedSubdir, "dropped.csv"))
		_, okBroken := os.Stat(filepath.Join(cfg.InboxDir, failedSubdir, "broken.xlsx"))
		return okDropped == nil && okBroken == nil
	}, 5*time.Second, 50*time.Millisecond)

	runs, err = db.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	exported, err := filepath.Glob(filepath.Join(cfg.OutputDir, "listener", "*.json"))
	require.NoError(t, err)
	assert.Len(t, exported, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.ListenerWatchInbox = true
	svc, _ := newTestService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMakeConnector(t *testing.T) {
	c, err := MakeConnector("none", config.Config{})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = MakeConnector("pop3", config.Config{})
	assert.ErrorContains(t, err, "unsupported listener provider")

	_, err = MakeConnector("imap", config.Config{})
	assert.ErrorContains(t, err, "IMAP_HOST")
}
