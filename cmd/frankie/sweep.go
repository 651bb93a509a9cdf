package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/autofranco/frankie/internal/campaign"
	"github.com/autofranco/frankie/internal/config"
	"github.com/autofranco/frankie/internal/content"
	"github.com/autofranco/frankie/internal/dispatch"
	"github.com/autofranco/frankie/internal/executor"
	"github.com/autofranco/frankie/internal/gateway"
	"github.com/autofranco/frankie/internal/llm"
	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one sweep now",
	Long:  `Run one global sweep against the store: pick up new rows, generate their emails and send whatever is due. The same pass the hourly trigger runs.`,
	RunE:  runSweep,
}

var sendNowCmd = &cobra.Command{
	Use:   "send-now <row>",
	Short: "Send a lead's next email immediately",
	Long:  `Send the earliest unsent email of one Running row right away, ahead of its scheduled time.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSendNow,
}

func init() {
	rootCmd.AddCommand(sweepCmd, sendNowCmd)
}

// core is the offline engine assembly CLI commands use: the same
// components the server wires, minus the HTTP surfaces and timers.
type core struct {
	store      *store.Store
	engine     *campaign.Engine
	dispatcher *dispatch.Dispatcher
}

func (c *core) Close() {
	c.store.Close()
}

func buildCore(cfg *config.Config) (*core, error) {
	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	m := metrics.New()

	generator := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)

	var gw gateway.Gateway
	switch cfg.Gateway.Transport {
	case "smtp":
		gw = gateway.NewSMTPGateway(cfg.Gateway.Addr, cfg.Gateway.Username, cfg.Gateway.Password, cfg.Gateway.From, cfg.Gateway.Timeout)
	default:
		gw = gateway.NewAPIGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.From, cfg.Gateway.Timeout)
	}

	engine := campaign.New(s, generator, campaign.Config{
		BatchSize: cfg.Campaign.BatchSize,
		Offsets:   cfg.Campaign.Offsets,
		Markers: content.Markers{
			Subject: cfg.Campaign.SubjectMarker,
			Body:    cfg.Campaign.BodyMarker,
		},
	}, m, logger)
	exec := executor.New(s, gw, cfg.Campaign.ClaimTTL, m, logger)

	return &core{
		store:      s,
		engine:     engine,
		dispatcher: dispatch.New(engine, exec, logger),
	}, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	// One pass handles at most a batch of new rows; keep going until
	// the backlog is drained so the one-off invocation finishes the job.
	for {
		if err := c.dispatcher.Dispatch(context.Background(), dispatch.SweepDue{}); err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		remaining, err := c.engine.Backlog()
		if err != nil {
			return fmt.Errorf("failed to check backlog: %w", err)
		}
		if remaining == 0 {
			break
		}
		fmt.Printf("%d rows deferred by the batch quota, running another pass\n", remaining)
	}

	fmt.Println("Sweep complete")
	return nil
}

func runSendNow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	row, err := parseRow(args[0])
	if err != nil {
		return err
	}

	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.dispatcher.Dispatch(context.Background(), dispatch.SendNowRequested{Row: row}); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	fmt.Printf("Sent next email for row %d\n", row)
	return nil
}
