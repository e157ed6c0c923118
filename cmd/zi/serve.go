package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/zyetaone/z-interact-sub000/internal/artifacts"
	"github.com/zyetaone/z-interact-sub000/internal/db"
	"github.com/zyetaone/z-interact-sub000/internal/feed"
	"github.com/zyetaone/z-interact-sub000/internal/gallery"
	"github.com/zyetaone/z-interact-sub000/internal/ledger"
	"github.com/zyetaone/z-interact-sub000/internal/notify"
	"github.com/zyetaone/z-interact-sub000/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Z-Interact server",
		Long:  "Runs the HTTP API, the change-feed SSE endpoint, artifact serving, and the background stale-generation sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "z-interact.yaml", "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	store := ledger.New(gormDB)
	promoter, err := artifacts.NewStore(cfg.Storage.Dir, cfg.Storage.BaseURL, nil)
	if err != nil {
		return err
	}
	locker := gallery.NewLocker(store, promoter, nil)
	recorder := gallery.NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	// Background sweep: a crashed provider call must not wedge a table.
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Sweep.Schedule, func() {
		n, err := store.SweepStale(cfg.Sweep.StaleAfter())
		if err != nil {
			log.Printf("serve: sweep: %v", err)
			return
		}
		if n > 0 {
			log.Printf("serve: sweep failed %d stale generation(s)", n)
		}
	})
	if err != nil {
		return fmt.Errorf("serve: sweep schedule %q: %w", cfg.Sweep.Schedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.Slack.BotToken != "" {
		notifier, err := notify.New(notify.Opts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
		if err != nil {
			return err
		}
		go watchCompletion(ctx, store, feedConfig(cfg), cfg.Event.Name, notifier)
		fmt.Fprintf(out, "Slack notifications enabled for channel %s\n", cfg.Slack.ChannelID)
	}

	fmt.Fprintf(out, "Event %q with %d tables\n", cfg.Event.Name, len(cfg.Event.Tables))

	return server.Start(ctx, server.StartOpts{
		Store:         store,
		Locker:        locker,
		Recorder:      recorder,
		Feed:          feedConfig(cfg),
		ArtifactsDir:  cfg.Storage.Dir,
		ArtifactsBase: cfg.Storage.BaseURL,
		Port:          port,
		Out:           out,
	})
}

// watchCompletion consumes feed sessions until a complete event arrives,
// then posts the Slack notice once. Sessions are bounded, so it
// re-subscribes with its cursor across timeouts like any other client.
func watchCompletion(ctx context.Context, store *ledger.Store, cfg feed.Config, eventName string, notifier *notify.Notifier) {
	var cursor int64
	for ctx.Err() == nil {
		session := feed.Subscribe(ctx, store, cfg, feed.Options{Since: cursor})
		for ev := range session.Events() {
			switch ev.Type {
			case feed.EventSync, feed.EventUpdate:
				if ud, ok := ev.Data.(feed.UpdateData); ok {
					for _, img := range ud.Images {
						if img.UpdatedAt > cursor {
							cursor = img.UpdatedAt
						}
					}
				}
			case feed.EventComplete:
				if cd, ok := ev.Data.(feed.CompleteData); ok {
					if err := notifier.GalleryComplete(eventName, cd.Ready); err != nil {
						log.Printf("serve: %v", err)
					}
				}
				return
			case feed.EventError:
				if ed, ok := ev.Data.(feed.ErrorData); ok {
					log.Printf("serve: completion watcher feed error: %s", ed.Message)
				}
			}
		}
	}
}
