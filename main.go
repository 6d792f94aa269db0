package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/spooky-finn/go-kalshi-bridge/config"
	"github.com/spooky-finn/go-kalshi-bridge/hotkey"
	promclient "github.com/spooky-finn/go-kalshi-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-kalshi-bridge/logger"
	"github.com/spooky-finn/go-kalshi-bridge/provider/kalshi"
	"github.com/spooky-finn/go-kalshi-bridge/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// .env is optional; plain environment works too.
		logger.Component("main").Debugf("no .env file loaded: %s", err)
	}

	log := logger.Component("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}

	go promclient.StartPromClientServer(cfg.MetricsAddr)

	client := kalshi.NewStreamClient(cfg)
	router := kalshi.NewRouter()

	streamAPI := kalshi.NewStreamAPI(client)
	streamAPI.Bind(router)

	watch := usecase.NewMarketWatchUseCase(streamAPI)
	watch.Bind(router)

	terminal := make(chan error, 1)
	client.OnEnvelope = router.Route
	client.OnOpen = watch.Resync
	client.OnStatusChange = func(connected bool) {
		log.Infof("kalshi feed connected=%t", connected)
	}
	client.OnTerminal = func(err error) {
		terminal <- err
	}

	if err := client.Connect(); err != nil {
		// The client keeps redialing on its own backoff schedule.
		log.Warnf("initial connect failed: %s", err)
	}

	if hotkeys, err := hotkey.Load(cfg.HotkeysFile); err != nil {
		log.Warnf("hotkeys unavailable: %s", err)
	} else {
		log.Infof("loaded %d hotkey bindings", len(hotkeys.Hotkeys))
	}

	if len(os.Args) > 1 {
		if err := watch.SwitchTo(os.Args[1]); err != nil {
			log.Warnf("failed to watch %s: %s", os.Args[1], err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-terminal:
			log.Errorf("feed is gone for good: %s", err)
			client.Shutdown()
			os.Exit(1)
		case <-stop:
			watch.Clear()
			client.Shutdown()
			return
		case <-ticker.C:
			snap, err := watch.Current()
			if err != nil {
				continue
			}
			log.Infof("%s yes_top=%d no_top=%d depth=%d/%d",
				snap.Ticker, snap.YesTop, snap.NoTop, len(snap.YesBids), len(snap.NoBids))
		}
	}
}
