package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ndax-connector/internal/config"
	"ndax-connector/internal/connector"
	"ndax-connector/internal/core"
	"ndax-connector/internal/events"
	"ndax-connector/internal/exchange/ndax"
	"ndax-connector/internal/safety"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	client, err := ndax.NewClient(ndax.Options{
		UID:               cfg.UID,
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UserName:          cfg.AccountName,
		RestBaseURL:       cfg.RestBaseURL,
		WSBaseURL:         cfg.WSBaseURL,
		OMSID:             cfg.OMSID,
		HTTPTimeoutSec:    cfg.Connector.HTTPTimeoutSec,
		RequestsPerSecond: cfg.Connector.RequestsPerSecond,
	})
	if err != nil {
		fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instruments := make([]core.Instrument, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		instruments = append(instruments, core.Instrument{
			Pair:       inst.Pair,
			BaseAsset:  inst.BaseAsset,
			QuoteAsset: inst.QuoteAsset,
			VenueID:    inst.VenueID,
		})
	}
	if len(instruments) == 0 {
		fetched, err := client.Instruments(ctx)
		if err != nil {
			fatal(fmt.Sprintf("load instruments: %v", err))
		}
		instruments = fetched
	}

	eventLog := events.NewLog()
	bus := events.NewBusWithOptions(eventLog, events.BusOptions{
		QueueSize: cfg.Connector.EventQueueSize,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bus.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "close event bus failed: %v\n", err)
		}
	}()

	breaker := safety.NewBreaker(true, 5)
	conn := connector.New(client, connector.NDAXDialer{Client: client, Keepalive: 30 * time.Second}, connector.Options{
		ShortPollInterval: time.Duration(cfg.Connector.ShortPollIntervalSec) * time.Second,
		LongPollInterval:  time.Duration(cfg.Connector.LongPollIntervalSec) * time.Second,
		StreamRecency:     time.Duration(cfg.Connector.StreamRecencySec) * time.Second,
		Heartbeat:         time.Duration(cfg.Connector.HeartbeatSec) * time.Second,
		FeeRate:           cfg.Connector.FeeRate.Decimal,
		AuthRetryAttempts: cfg.Connector.AuthRetryAttempts,
		Instruments:       instruments,
		Events:            bus,
		Breaker:           breaker,
	})

	if status := conn.CheckNetwork(ctx); status != core.Connected {
		fatal("venue is not reachable: network check returned " + string(status))
	}

	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
