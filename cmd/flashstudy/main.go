package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/flashstudy/internal/auth"
	"github.com/conorfennell/flashstudy/internal/backend"
	"github.com/conorfennell/flashstudy/internal/config"
	"github.com/conorfennell/flashstudy/internal/llmgen"
	"github.com/conorfennell/flashstudy/internal/logging"
	"github.com/conorfennell/flashstudy/internal/metrics"
	"github.com/conorfennell/flashstudy/internal/storage"
	"github.com/conorfennell/flashstudy/internal/study"
	"github.com/conorfennell/flashstudy/internal/sync"
	"github.com/conorfennell/flashstudy/internal/web"
)

func main() {
	// 1. Define and parse command-line flags
	flags := pflag.NewFlagSet("flashstudy", pflag.ExitOnError)
	config.RegisterFlags(flags)
	serve := flags.Bool("serve", false, "Start the HTTP API")
	topic := flags.String("topic", "", "Generate flashcards and an exam for a topic")
	upload := flags.String("upload", "", "Generate flashcards and an exam from a PDF file")
	addSource := flags.String("add-source", "", "Add a local directory or git URL of markdown decks")
	runSync := flags.Bool("sync", false, "Import every deck source")
	list := flags.Bool("list", false, "List topics, newest first")
	deleteTopic := flags.String("delete", "", "Delete a topic with its cards and questions")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)

	// 2. Open the database
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DB.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Debug("Database opened", "path", cfg.DB.Path)

	generator, err := newGenerator(cfg)
	if err != nil {
		slog.Error("Failed to configure generator", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	svc := study.NewService(db, generator, m)
	syncer := sync.New(db, cfg.Sync.ReposDir, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Run the requested action
	switch {
	case *addSource != "":
		err = addNewSource(ctx, syncer, *addSource)
	case *runSync:
		err = syncSources(ctx, syncer)
	case *topic != "":
		err = printState(svc.GenerateFromTopic(ctx, *topic))
	case *upload != "":
		err = uploadPDF(ctx, svc, *upload)
	case *list:
		err = listTopics(ctx, svc)
	case *deleteTopic != "":
		err = svc.DeleteTopic(ctx, *deleteTopic)
		if err == nil {
			fmt.Printf("Deleted topic %s\n", *deleteTopic)
		}
	case *serve:
		authClient := auth.New(cfg.Auth.URL, cfg.Auth.Key, cfg.Auth.RedirectURL, cfg.Auth.Timeout, db)
		err = runServer(ctx, cfg.Server.Addr, web.NewServer(db, svc, authClient, syncer, m))
	default:
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newGenerator(cfg *config.Config) (study.Generator, error) {
	if cfg.Generator == config.GeneratorAnthropic {
		return llmgen.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	}
	return backend.New(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithRateLimit(cfg.Backend.Rate, cfg.Backend.Burst),
	)
}

func addNewSource(ctx context.Context, syncer *sync.Syncer, path string) error {
	source, err := syncer.AddSource(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("Source %d: %s (%s)\n", source.ID, source.Path, source.Type)
	return nil
}

func syncSources(ctx context.Context, syncer *sync.Syncer) error {
	report, err := syncer.RunSync(ctx)
	if err != nil {
		return err
	}

	// 4. Print the final report
	fmt.Printf("Synced %d files: %d cards, %d questions, %d removed, %d errors.\n",
		report.Files, report.Cards, report.Questions, report.Orphaned, len(report.Errors))
	if len(report.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range report.Errors {
			fmt.Printf("- %s\n", e)
		}
	}
	return nil
}

func uploadPDF(ctx context.Context, svc *study.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return printState(svc.GenerateFromPDF(ctx, filepath.Base(path), f))
}

func printState(state study.UploadState, err error) error {
	if err != nil {
		return err
	}
	if state.Status == study.StatusError {
		return errors.New(state.Message)
	}
	fmt.Printf("Saved material under topic %q (%s)\n", state.Topic.Name, state.Topic.ID)
	return nil
}

func listTopics(ctx context.Context, svc *study.Service) error {
	subjects, err := svc.Grid(ctx)
	if err != nil {
		return err
	}
	for _, s := range subjects {
		fmt.Printf("%s\t%s\n", s.TopicID, s.Name)
	}
	fmt.Printf("%d topics\n", len(subjects))
	return nil
}

func runServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
