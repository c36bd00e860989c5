// Command dsd-neo decodes digital voice traffic (P25/DMR/NXDN/D-STAR/
// YSF/dPMR/EDACS/M17) from a symbol stream, follows trunked voice
// grants, tunes the configured radio backend, and optionally exports
// call metadata to an Rdio-compatible API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/arancormonk/dsd-neo/internal/config"
	"github.com/arancormonk/dsd-neo/internal/control"
	"github.com/arancormonk/dsd-neo/internal/dsdctx"
	"github.com/arancormonk/dsd-neo/internal/logging"
	"github.com/arancormonk/dsd-neo/internal/rdio"
	"github.com/arancormonk/dsd-neo/internal/runtime"
	"github.com/arancormonk/dsd-neo/internal/symbol"
)

var mainLog = logging.For("main")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cli, err := config.ParseArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fileCfg, err := config.LoadFile(cli.ConfigPath, cli.Profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Merge(fileCfg, cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg.ApplyEnv(nil)

	if cfg.Headless {
		logging.SetLevel(log.InfoLevel)
	}

	watchdogPeriod := control.InteractivePeriod
	if cfg.Headless {
		watchdogPeriod = control.HeadlessPeriod
	}
	if cfg.WatchdogMs > 0 {
		watchdogPeriod = control.ClampWatchdogPeriod(time.Duration(cfg.WatchdogMs) * time.Millisecond)
	}

	decoder, err := dsdctx.New(dsdctx.Options{
		Source:      nullSource{},
		Modulation:  symbol.ModC4FM,
		HistorySize: 2048,
		TrunkConfig: cfg.Trunk,
		RigctlAddr:  "", // direct-stream/rigctl backends are selected by -i at a later wiring stage
		RTLUDPPort:  cfg.RTLUDPControl,
	})
	if err != nil {
		mainLog.Error("failed to build decoder context", "err", err)
		return 1
	}

	guard := control.NewTickGuard()
	watchdog, err := control.NewWatchdog(decoder, watchdogPeriod, guard)
	if err != nil {
		mainLog.Error("failed to build watchdog", "err", err)
		return 1
	}
	if err := watchdog.Start(); err != nil {
		mainLog.Error("failed to start watchdog", "err", err)
		return 1
	}
	defer watchdog.Stop()

	go decoder.RunDecodeLoop(time.Now)

	var listener *control.Listener
	if cfg.RTLUDPControl != 0 {
		listener, err = control.NewListener(cfg.RTLUDPControl, func(freqHz uint32) {
			if err := decoder.Tuning.TuneCC(uint64(freqHz)); err != nil {
				mainLog.Warn("control-plane retune failed", "err", err)
			}
		})
		if err != nil {
			mainLog.Error("failed to start control listener", "err", err)
			return 1
		}
		go listener.Serve()
		defer listener.Stop()
	}

	var rdioWorker *rdio.Worker
	if cfg.Rdio.Mode != rdio.ModeOff && cfg.Rdio.APIURL != "" {
		queue := rdio.NewQueue()
		uploader := newRdioHTTPUploader(cfg.Rdio.APIURL, cfg.Rdio.APIKey)
		rdioWorker = rdio.NewWorker(queue, uploader, 200*time.Millisecond)
		go rdioWorker.Run()
		defer rdioWorker.Stop()
	}

	mainLog.Info("dsd-neo started", "decode_mode", cfg.Mode.Decode, "headless", cfg.Headless)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	runtime.RequestShutdown()
	mainLog.Info("shutting down")
	return 0
}

// nullSource is the placeholder symbol.Source until the -i input
// backend (pulse/soapy/rtl/rtltcp) is wired; it never produces a
// symbol.
type nullSource struct{}

func (nullSource) Next() (float32, bool) { return 0, false }

// rdioHTTPUploader posts a job's Call metadata to an Rdio-compatible
// HTTP API. It satisfies rdio.Uploader.
type rdioHTTPUploader struct {
	url    string
	apiKey string
	client *http.Client
}

func newRdioHTTPUploader(url, apiKey string) *rdioHTTPUploader {
	return &rdioHTTPUploader{url: url, apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}
