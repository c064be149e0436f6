package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/capture"
	"github.com/zuckdorsey/inputtrace/internal/config"
	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/models"
	"github.com/zuckdorsey/inputtrace/internal/pending"
	"github.com/zuckdorsey/inputtrace/internal/sender"
	"github.com/zuckdorsey/inputtrace/internal/store"
)

var agentFlags struct {
	replayFile string
	replayPace time.Duration
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the capture agent and batch sender",
	Long: `Run the capture pipeline: normalize input events, append them to the
local event log and deliver them in batches to the configured webhook, with
failed batches parked in the durable pending cache.

OS-level hook sources are platform bindings that feed this pipeline from the
outside. The built-in --replay source re-emits a recorded events.jsonl file,
which exercises the full pipeline without any hooks installed.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().StringVar(&agentFlags.replayFile, "replay", "", "replay a recorded events.jsonl file as the capture source")
	agentCmd.Flags().DurationVar(&agentFlags.replayPace, "replay-pace", 50*time.Millisecond, "delay between replayed events")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.ConsentAcknowledged {
		return fmt.Errorf("consent_acknowledged is not set in %s; inputtrace records input on this machine and refuses to run without explicit consent", rootFlags.configPath)
	}

	st, err := store.Open(cfg.EventLogPath())
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()

	cache, err := pending.Open(cfg.PendingCachePath(), logger.Named("pending"))
	if err != nil {
		return fmt.Errorf("open pending cache: %w", err)
	}

	m := metrics.NewDefault()
	snd := sender.New(cfg, cache, logger.Named("sender"), m)
	redactor := models.NewRedactor(cfg.SensitiveKeywords)
	recorder := capture.NewRecorder(redactor, st, snd, logger.Named("capture"), m)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		snd.Run(ctx)
	}()

	logger.Info("agent started",
		logging.Path(cfg.EventLogPath()),
		logging.URL(cfg.WebhookURL))

	if agentFlags.replayFile != "" {
		src := capture.NewReplaySource(agentFlags.replayFile, agentFlags.replayPace)
		if err := recorder.Consume(ctx, src); err != nil && err != context.Canceled {
			logger.Warn("replay source stopped", zap.Error(err))
		}
		// Replay finished; give the sender its shutdown flush.
		stop()
	}

	<-ctx.Done()
	wg.Wait()

	logger.Info("agent stopped")
	return nil
}
