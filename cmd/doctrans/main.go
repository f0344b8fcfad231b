package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal/app"
	"codeberg.org/snonux/doctrans/internal/batch"
	"codeberg.org/snonux/doctrans/internal/cli"
	"codeberg.org/snonux/doctrans/internal/models"
	"codeberg.org/snonux/doctrans/internal/notify"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
	"codeberg.org/snonux/doctrans/internal/server"
)

// pollInterval is how often the translate command checks for results
const pollInterval = 200 * time.Millisecond

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	rootCmd := cli.CreateRootCommand(flags, cli.Actions{
		Archive: func(cmd *cobra.Command) error {
			return runArchive(flags)
		},
		Serve: func(cmd *cobra.Command) error {
			return runServe(cmd.Context(), flags)
		},
		Translate: func(cmd *cobra.Command, files []string) error {
			return runTranslate(cmd.Context(), flags, files)
		},
		Providers: func(cmd *cobra.Command) error {
			return runProviders(flags)
		},
		Models: func(cmd *cobra.Command) error {
			return runModels(cmd.Context(), flags)
		},
	})

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup resolves the settings and wires the application
func setup(ctx context.Context, flags *cli.Flags) (*app.App, *zap.Logger, error) {
	log, err := cli.NewLogger(flags.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	settings, err := cli.LoadSettings()
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, settings, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func runArchive(flags *cli.Flags) error {
	path, err := render.ArchiveOutputs(flags.OutputDir, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive outputs: %w", err)
	}
	fmt.Printf("Archived previous outputs to: %s\n", path)
	return nil
}

func runServe(ctx context.Context, flags *cli.Flags) error {
	a, log, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	srv := server.New(a, log.Named("server"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        conc.WaitGroup
		runErr    error
		serverErr error
	)
	wg.Go(func() {
		runErr = a.Run(ctx)
	})
	wg.Go(func() {
		serverErr = srv.Run(ctx, a.Settings.ServerAddr)
		// The scheduler has nothing to serve without the listener.
		cancel()
	})
	wg.Wait()

	return errors.Join(runErr, serverErr)
}

// pending is a task submitted by the translate command
type pending struct {
	entry  batch.Entry
	taskID string
	err    error
	result notify.Result
}

func runTranslate(ctx context.Context, flags *cli.Flags, files []string) error {
	var entries []batch.Entry
	if flags.BatchFile != "" {
		fromFile, err := batch.ReadBatchFile(flags.BatchFile)
		if err != nil {
			return err
		}
		entries = append(entries, fromFile...)
	}
	for _, f := range files {
		entries = append(entries, batch.Entry{Path: f})
	}
	if len(entries) == 0 {
		return fmt.Errorf("no documents given: pass files or --batch")
	}
	for i := range entries {
		if entries[i].UserID == 0 {
			entries[i].UserID = flags.UserID
		}
	}

	a, log, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg conc.WaitGroup
	wg.Go(func() {
		_ = a.Run(runCtx)
	})
	defer wg.Wait()
	defer cancel()

	tasks := make([]*pending, len(entries))
	for i, entry := range entries {
		tasks[i] = &pending{entry: entry}
		submit(ctx, a, tasks[:i+1])
	}
	for _, t := range tasks {
		if err := waitFor(ctx, a, t); err != nil {
			return err
		}
	}

	printSummary(tasks)
	return nil
}

// submit submits the last of tasks. While the user is at a concurrency
// limit it waits for one of the earlier tasks to finish.
func submit(ctx context.Context, a *app.App, tasks []*pending) {
	t := tasks[len(tasks)-1]

	payload, err := os.ReadFile(t.entry.Path)
	if err != nil {
		t.err = fmt.Errorf("failed to read %s: %w", t.entry.Path, err)
		return
	}

	sub := queue.Submission{UserID: t.entry.UserID, Filename: filepath.Base(t.entry.Path), Payload: payload}
	for {
		t.taskID, err = a.Scheduler.Submit(sub)
		if err == nil {
			fmt.Printf("Queued %s as task %s\n", t.entry.Path, t.taskID)
			return
		}
		if !errors.Is(err, queue.ErrAdmission) || !waitForAny(ctx, a, tasks[:len(tasks)-1], t.entry.UserID) {
			t.err = err
			return
		}
	}
}

// waitForAny waits until one unfinished task of userID finishes. It
// returns false when there is none to wait for.
func waitForAny(ctx context.Context, a *app.App, tasks []*pending, userID int64) bool {
	var open []*pending
	for _, t := range tasks {
		if t.taskID != "" && t.result.TaskID == "" && t.entry.UserID == userID {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return false
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		for _, t := range open {
			if r, ok := a.Inbox.Result(t.entry.UserID, t.taskID); ok {
				t.result = r
				return true
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// waitFor blocks until the result of t arrives
func waitFor(ctx context.Context, a *app.App, t *pending) error {
	if t.taskID == "" || t.result.TaskID != "" {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if r, ok := a.Inbox.Result(t.entry.UserID, t.taskID); ok {
			t.result = r
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printSummary(tasks []*pending) {
	var translated, partial, failed int
	for _, t := range tasks {
		switch {
		case t.err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", t.entry.Path, t.err)
		case !t.result.Success:
			failed++
			fmt.Fprintf(os.Stderr, "Error: %s: %s\n", t.entry.Path, t.result.Error)
		default:
			translated++
			if t.result.FailedChunks > 0 {
				partial++
			}
			fmt.Printf("%s -> %s\n", t.entry.Path, t.result.OutputPath)
		}
	}

	fmt.Printf("\n=== Translation Summary ===\n")
	fmt.Printf("Total documents: %d\n", len(tasks))
	fmt.Printf("Translated: %d\n", translated)
	if partial > 0 {
		fmt.Printf("With untranslated parts: %d\n", partial)
	}
	if failed > 0 {
		fmt.Printf("Errors: %d\n", failed)
	}
	fmt.Printf("===========================\n")
}

func runProviders(flags *cli.Flags) error {
	settings, err := cli.LoadSettings()
	if err != nil {
		return err
	}

	log, err := cli.NewLogger(flags.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(context.Background(), settings, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.Keys.UsageReport()
	services := make([]string, 0, len(report))
	for s := range report {
		services = append(services, s)
	}
	sort.Strings(services)

	fmt.Printf("%-8s %6s %7s %7s %9s\n", "SERVICE", "KEYS", "ACTIVE", "USAGE", "AVERAGE")
	for _, s := range services {
		u := report[s]
		fmt.Printf("%-8s %6d %7d %7d %9.1f\n", s, u.TotalKeys, u.ActiveKeys, u.TotalUsage, u.AverageUsage)
	}
	fmt.Printf("\nFallback order: %v\n", a.Pipeline.Services())
	fmt.Printf("Status: %s\n", a.Keys.StatusSummary())
	return nil
}

func runModels(ctx context.Context, flags *cli.Flags) error {
	settings, err := cli.LoadSettings()
	if err != nil {
		return err
	}

	var provider app.ProviderSettings
	for _, p := range settings.Providers {
		if p.Service == flags.Service {
			provider = p
		}
	}
	if provider.Service == "" {
		return fmt.Errorf("unknown service: %s", flags.Service)
	}

	var key string
	if len(provider.Keys) > 0 {
		key = provider.Keys[0]
	}
	lister := models.NewLister(provider.Service, key, provider.BaseURL)
	return lister.ListAvailableModels(ctx, os.Stdout)
}
