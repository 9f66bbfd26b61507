// netcheck probes venue connectivity: REST ping, account id resolution and a
// balances snapshot, reported as a JSON check list.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"ndax-connector/internal/config"
	"ndax-connector/internal/core"
	"ndax-connector/internal/exchange/ndax"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Checks     []checkResult `json:"checks"`
}

func main() {
	var (
		configPath string
		timeoutSec int
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.IntVar(&timeoutSec, "timeout", 30, "overall timeout in seconds")
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	rep := report{StartedAt: time.Now().UTC()}
	failed := false

	rep.Checks = append(rep.Checks, runCheck("ping", func() (string, error) {
		if status := client.Ping(ctx); status != core.Connected {
			return "", fmt.Errorf("network check returned %s", status)
		}
		return "PONG", nil
	}))

	var accountID int64
	rep.Checks = append(rep.Checks, runCheck("account_id", func() (string, error) {
		id, err := client.AccountID(ctx)
		if err != nil {
			return "", err
		}
		accountID = id
		return fmt.Sprintf("account_id=%d", id), nil
	}))

	rep.Checks = append(rep.Checks, runCheck("balances", func() (string, error) {
		if accountID == 0 {
			return "", core.ErrAccountNotResolved
		}
		entries, err := client.AccountPositions(ctx, accountID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("assets=%d", len(entries)), nil
	}))

	rep.FinishedAt = time.Now().UTC()
	for _, check := range rep.Checks {
		if check.Status == statusFail {
			failed = true
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fatal(err.Error())
	}
	if failed {
		os.Exit(1)
	}
}

func runCheck(name string, fn func() (string, error)) checkResult {
	start := time.Now()
	detail, err := fn()
	result := checkResult{
		Name:       name,
		Status:     statusPass,
		DurationMs: time.Since(start).Milliseconds(),
		Detail:     detail,
	}
	if err != nil {
		result.Status = statusFail
		result.Error = err.Error()
	}
	return result
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
