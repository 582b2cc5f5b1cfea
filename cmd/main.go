package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/s2-downloader/internal/cache"
	"github.com/forest-guardian/s2-downloader/internal/delivery"
	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/notification"
	"github.com/forest-guardian/s2-downloader/internal/properties"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
	"github.com/forest-guardian/s2-downloader/internal/ui"
)

// app carries what every command needs once the configuration is loaded.
type app struct {
	cfg      *properties.Config
	console  *ui.Console
	notifier *notification.Discord
	store    *tasks.Store
	service  *delivery.Service
}

// connect opens the task ledger and the Earth Engine client.
func (a *app) connect(ctx context.Context) error {
	if a.service != nil {
		return nil
	}
	hc, err := ee.AuthenticatedClient(ctx, ee.Credentials{
		File:        a.cfg.CredentialsFile,
		AccessToken: a.cfg.AccessToken,
	})
	if err != nil {
		return err
	}
	client, err := ee.NewClient(a.cfg.Project,
		ee.WithHTTPClient(hc),
		ee.WithBaseURL(a.cfg.BaseURL),
		ee.WithRetries(a.cfg.Retries),
	)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data folder: %w", err)
	}
	store, err := tasks.Open(a.cfg.TasksDBPath())
	if err != nil {
		return err
	}
	a.store = store

	a.service = delivery.New(client, store,
		delivery.WithDateCache(cache.NewFileCache[[]int64](a.cfg.CachePath(), a.cfg.CacheTTL)),
		delivery.WithNotifier(a.notifier),
		delivery.WithDestination(ee.Destination{DriveFolder: a.cfg.DriveFolder, Bucket: a.cfg.Bucket}),
		delivery.WithOutputDir(a.cfg.OutputPath()),
		delivery.WithWorkers(a.cfg.Workers),
		delivery.WithScale(a.cfg.Scale),
		delivery.WithMaxPixels(a.cfg.MaxPixels),
		delivery.WithProgress(a.console.Progress),
	)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// recoverPanic reports a panic to the error channel before exiting.
func (a *app) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	red := color.New(color.FgRed)
	red.Printf("\nPANIC: %v\n", r)
	red.Printf("Location: %s\n", location)
	red.Println("Please check the input and try again.")
	red.Println("Exiting...")

	msg := fmt.Sprintf("S2 downloader panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	if err := a.notifier.Error(context.Background(), msg); err != nil {
		red.Printf("Failed to send notification: %s\n", err.Error())
	}
	a.close()
	os.Exit(2)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "s2-downloader",
		Short:         "Filter, composite and export Sentinel-2 products with Earth Engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			a.console.PrintBanner()
			ui.NewMenu(a.console, a.service, a.cfg.RootPath, a.cfg.OutputPath()).Run(cmd.Context())
			return nil
		},
	}
	root.AddCommand(
		newDatesCommand(a),
		newExportCommand(a),
		newPreviewCommand(a),
		newQuicklookCommand(a),
		newDownloadCommand(a),
		newTasksCommand(a),
		newAOICommand(a),
	)
	return root
}

func main() {
	cfg, err := properties.Load()
	if err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}
	a := &app{
		cfg:      cfg,
		console:  ui.Stdio(),
		notifier: notification.NewDiscord(cfg.DiscordErrorURL, cfg.DiscordSuccessURL),
	}
	defer a.recoverPanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = newRootCommand(a).ExecuteContext(ctx)
	stop()
	a.close()
	if err != nil {
		a.console.PrintError(err.Error())
		os.Exit(1)
	}
}
