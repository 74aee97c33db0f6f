package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/spf13/cobra"

	"github.com/cellgrid/actorsys/actor"
	"github.com/cellgrid/actorsys/cmd/actorctl/demo"
	"github.com/cellgrid/actorsys/internal/log"
	"github.com/cellgrid/actorsys/system"
)

var incrementCount int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a system, exercise ask/tell/event-bus traffic, and report the result",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVar(
		&incrementCount, "increments", 3,
		"Number of INCREMENT tells to send to the demo counter actor",
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	if verbose {
		handler := btclog.NewDefaultHandler(os.Stderr)
		log.UseLogger(btclog.NewSLogger(handler))
	}

	cfg := actor.DefaultConfig().Apply(actor.WithNodeID(nodeID))

	sys := system.New(cfg)
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		return fmt.Errorf("starting system: %w", err)
	}
	defer sys.Stop(ctx)

	sys.RegisterBehavior(demo.EchoKind, func() actor.Behavior { return demo.EchoBehavior{} })
	sys.RegisterBehavior(demo.CounterKind, func() actor.Behavior { return &demo.CounterBehavior{} })

	logger := &demo.LoggerBehavior{}
	sys.RegisterBehavior(demo.LoggerKind, func() actor.Behavior { return logger })

	echoAddr, err := sys.Spawn(ctx, demo.EchoKind, actor.Address{}, 0, actor.SupervisionStrategy{})
	if err != nil {
		return fmt.Errorf("spawning echo actor: %w", err)
	}
	counterAddr, err := sys.Spawn(ctx, demo.CounterKind, actor.Address{}, 0, actor.SupervisionStrategy{})
	if err != nil {
		return fmt.Errorf("spawning counter actor: %w", err)
	}
	loggerAddr, err := sys.Spawn(ctx, demo.LoggerKind, actor.Address{}, 0, actor.SupervisionStrategy{})
	if err != nil {
		return fmt.Errorf("spawning logger actor: %w", err)
	}

	sys.Subscribe(counterAddr, loggerAddr, actor.EmitType(demo.EventCountChanged))

	for i := 0; i < incrementCount; i++ {
		if _, err := sys.Tell(ctx, counterAddr, actor.NewEnvelope(demo.MsgIncrement, nil)); err != nil {
			return fmt.Errorf("sending increment %d: %w", i, err)
		}
	}

	askCtx, cancel := context.WithTimeout(ctx, cfg.DefaultAskTimeout())
	defer cancel()
	result := sys.Ask(askCtx, echoAddr, actor.NewEnvelope(demo.MsgPing, "hello"), 0)
	reply, err := result.Unpack()
	if err != nil {
		return fmt.Errorf("asking echo actor: %w", err)
	}

	// Give the fan-out from the final increment a moment to land before
	// reading the logger's snapshot; increments are enqueued but the
	// scheduler runs turns asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for len(logger.Snapshot()) < incrementCount && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	return renderRunResult(runResult{
		EchoReply:  fmt.Sprintf("%v", reply),
		EventsSeen: len(logger.Snapshot()),
		SystemInfo: sys.Info(),
	})
}

type runResult struct {
	EchoReply  string      `json:"echo_reply"`
	EventsSeen int         `json:"events_seen"`
	SystemInfo interface{} `json:"system_info"`
}

func renderRunResult(res runResult) error {
	if outputFormat == "json" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("echo reply:   %s\n", res.EchoReply)
	fmt.Printf("events seen:  %d\n", res.EventsSeen)
	fmt.Printf("system info:  %+v\n", res.SystemInfo)
	return nil
}
