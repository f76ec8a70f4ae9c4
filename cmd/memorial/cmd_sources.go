package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"memorial/internal/connectors"
	"memorial/internal/listener"
	"memorial/internal/pipeline"
	"memorial/internal/remote"
)

var (
	fetchForce bool

	mailProvider  string
	mailLabel     string
	mailMax       int
	mailMessageID string
	mailID        int
	mailBatch     int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download REMOTE_CSV_URL and parse it when it changed",
	Args:  cobra.NoArgs,
	RunE:  fetchRemote,
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Fetch and process roster mails",
}

var mailFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Store new roster mails from the mailbox",
	Args:  cobra.NoArgs,
	RunE:  fetchMail,
}

var mailProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Parse stored mails into runs",
	Args:  cobra.NoArgs,
	RunE:  processMail,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Poll mail, the remote roster and the inbox directory until interrupted",
	Args:  cobra.NoArgs,
	RunE:  listen,
}

func registerSourceCommands() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Ignore the stored ETag and content hash")

	mailCmd.PersistentFlags().StringVar(&mailProvider, "provider", "", "Mail provider: imap|gmail (default: LISTENER_PROVIDER)")
	mailFetchCmd.Flags().StringVar(&mailLabel, "label", "", "Mailbox or label (default: LISTENER_LABEL)")
	mailFetchCmd.Flags().IntVar(&mailMax, "max", 50, "Maximum messages to fetch")
	mailProcessCmd.Flags().StringVar(&mailMessageID, "message-id", "", "Process one stored message")
	mailProcessCmd.Flags().IntVar(&mailID, "id", 0, "Process one stored mail by database id")
	mailProcessCmd.Flags().IntVar(&mailBatch, "batch", 20, "Maximum pending mails to process")

	mailCmd.AddCommand(mailFetchCmd)
	mailCmd.AddCommand(mailProcessCmd)

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(listenCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fetchRemote(cmd *cobra.Command, args []string) error {
	if err := cfg.Require("REMOTE_CSV_URL", cfg.RemoteCSVURL); err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	proc, err := newProcessor(db)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := remote.NewSyncService(db, cfg, proc, logger).Refresh(ctx, fetchForce)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.Changed {
		fmt.Fprintln(out, "remote roster unchanged")
		return nil
	}
	fmt.Fprintf(out, "stored run=%d raw=%s\n", res.Run.RunID, res.RawPath)
	printSummary(out, res.Run.Source, strategyOrDefault(), len(res.Run.Records), res.Run.Diagnostics)
	return nil
}

func provider() string {
	p := mailProvider
	if strings.TrimSpace(p) == "" {
		p = cfg.ListenerProvider
	}
	return strings.ToLower(strings.TrimSpace(p))
}

func fetchMail(cmd *cobra.Command, args []string) error {
	name := provider()
	conn, err := listener.MakeConnector(name, cfg)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("no mail provider configured, use --provider imap|gmail")
	}
	label := mailLabel
	if label == "" {
		label = cfg.ListenerLabel
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()
	res, err := connectors.NewFetchService(db, cfg.RawDir, conn, logger).FetchAndStore(ctx, label, mailMax)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mail fetch done provider=%s fetched=%d stored=%d new=%d\n", name, res.Fetched, res.Stored, res.New)
	return nil
}

func processMail(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	proc, err := newProcessor(db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if mailID > 0 {
		mail, err := db.GetMailByID(mailID)
		if err != nil {
			return err
		}
		if mail == nil {
			return fmt.Errorf("mail not found: id=%d", mailID)
		}
		res, err := proc.ProcessMail(*mail)
		if err != nil {
			return err
		}
		printMailResult(out, res)
		return nil
	}
	if strings.TrimSpace(mailMessageID) != "" {
		res, err := proc.ProcessByProviderMessageID(provider(), mailMessageID)
		if err != nil {
			return err
		}
		printMailResult(out, res)
		return nil
	}
	mails, records, err := proc.ProcessPending(mailBatch, provider())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "processed pending mails=%d records=%d\n", mails, records)
	return nil
}

func printMailResult(w io.Writer, res pipeline.MailResult) {
	if res.Skipped {
		fmt.Fprintf(w, "mail id=%d skipped: no roster found\n", res.MailID)
		return
	}
	fmt.Fprintf(w, "processed mail id=%d runs=%d records=%d\n", res.MailID, len(res.Runs), res.Emitted())
}

func listen(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	proc, err := newProcessor(db)
	if err != nil {
		return err
	}
	svc, err := listener.NewService(db, cfg, proc, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return svc.Run(ctx)
}

func strategyOrDefault() string {
	if strategy != "" {
		return strategy
	}
	return cfg.ParseStrategy
}
