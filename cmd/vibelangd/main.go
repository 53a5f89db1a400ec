// Command vibelangd wires the state manager, transport, OSC dispatcher,
// MIDI input router, recorder and REST control plane together into one
// running process (spec.md §2, §5). It is grounded on schollz-221e's
// main.go: flags for every externally-configurable endpoint, log output
// gated behind a --debug path (io.Discard otherwise), and signal-driven
// cleanup on exit — adapted from a single-process TUI+OSC-client shape to
// a headless daemon with no UI of its own (spec.md §6: "this
// specification treats any CLI as a client of the REST or script API").
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trusch/vibelang/internal/api"
	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/midiinput"
	"github.com/trusch/vibelang/internal/oscdispatch"
	"github.com/trusch/vibelang/internal/recorder"
	"github.com/trusch/vibelang/internal/timing"
	"github.com/trusch/vibelang/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

type config struct {
	oscHost      string
	oscPort      int
	replyAddr    string
	httpAddr     string
	tickPeriodMs int
	lookaheadQN  float64
	mailboxCap   int
	midiDevice   string
	record       bool
	recordLog    string
	debugLog     string
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	cmd := &cobra.Command{
		Use:   "vibelangd",
		Short: "VibeLang live-coded music runtime daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.oscHost, "osc-host", "127.0.0.1", "synthesis engine OSC host")
	flags.IntVar(&cfg.oscPort, "osc-port", 57110, "synthesis engine OSC port (scsynth default)")
	flags.StringVar(&cfg.replyAddr, "reply-addr", ":57111", "local address the engine's /done replies are received on")
	flags.StringVar(&cfg.httpAddr, "http-addr", "localhost:1606", "REST control-plane listen address (spec.md §6 default)")
	flags.IntVar(&cfg.tickPeriodMs, "tick-ms", 2, "transport tick period in milliseconds (spec.md §4.6: 1-4ms)")
	flags.Float64Var(&cfg.lookaheadQN, "lookahead-beats", 0.25, "scheduler lookahead window, in beats")
	flags.IntVar(&cfg.mailboxCap, "mailbox-cap", 256, "state manager mailbox capacity before Submit blocks")
	flags.StringVar(&cfg.midiDevice, "midi-device", "", "MIDI input device name to open at startup; empty disables MIDI input")
	flags.BoolVar(&cfg.record, "record", false, "enable the OSC command recorder from startup")
	flags.StringVar(&cfg.recordLog, "record-log", "vibelang-record.jsonl", "incremental append-only log the recorder mirrors each dispatched command to while --record is set")
	flags.StringVar(&cfg.debugLog, "debug", "", "if set, write debug logs to this file; empty disables logging")
	return cmd
}

func run(cfg *config) error {
	logger := setupLogger(cfg.debugLog)

	backend := oscdispatch.NewBackend(cfg.oscHost, cfg.oscPort)
	replyListener := oscdispatch.NewReplyListener(cfg.replyAddr)
	backend.AttachReplyListener(replyListener)

	mgr := engine.NewManager(backend, cfg.mailboxCap, logger)

	rec := recorder.New(logger)
	if cfg.record {
		rec.Enable()
		if f, err := os.Create(cfg.recordLog); err != nil {
			logger.Printf("vibelangd: could not open record log %q, recording stays in-memory-only: %v", cfg.recordLog, err)
		} else {
			rec.SetLiveWriter(f)
		}
	}

	dispatcher := oscdispatch.NewDispatcher(backend.Client(), backend.GroupIDs())
	dispatcher.SetRecorder(rec)

	tr := transport.New(mgr, dispatcher, time.Duration(cfg.tickPeriodMs)*time.Millisecond, timing.Beat(cfg.lookaheadQN), logger)

	var midiRouter *midiinput.Router
	if cfg.midiDevice != "" {
		midiRouter = midiinput.New(mgr, nil, logger)
		if err := midiRouter.Open(cfg.midiDevice); err != nil {
			logger.Printf("vibelangd: could not open MIDI device %q: %v", cfg.midiDevice, err)
			midiRouter = nil
		}
	}

	apiServer := api.New(mgr, cfg.httpAddr, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Run(ctx)
	go tr.Run(ctx)
	go func() {
		if err := apiServer.Run(ctx); err != nil {
			logger.Printf("vibelangd: REST listener stopped: %v", err)
		}
	}()

	logger.Printf("vibelangd: listening on %s, sending OSC to %s:%d", cfg.httpAddr, cfg.oscHost, cfg.oscPort)
	<-ctx.Done()

	logger.Println("vibelangd: shutting down")
	if midiRouter != nil {
		midiRouter.Close()
	}
	tr.StopTicking()
	mgr.Stop()
	return nil
}

func setupLogger(debugLog string) *log.Logger {
	if debugLog == "" {
		return log.New(io.Discard, "", 0)
	}
	f, err := os.Create(debugLog)
	if err != nil {
		log.Printf("vibelangd: could not open debug log %q: %v", debugLog, err)
		return log.New(io.Discard, "", 0)
	}
	return log.New(f, "", log.LstdFlags|log.Lshortfile)
}
