package main

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/bootstrap"
	"github.com/artpar/tacoscan/config"
)

// openRitual builds the application from the config file or environment and
// opens a dashboard session for the ritual named by raw.
// The caller must Shutdown the returned app.
func openRitual(ctx context.Context, raw string, logOutput io.Writer) (*bootstrap.App, *app.Session, error) {
	id, err := app.ParseRitualID(raw)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	a, err := bootstrap.New(ctx, bootstrap.Options{Config: cfg, Version: version, LogOutput: logOutput})
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing: %w", err)
	}

	sess, err := a.Dashboard.Open(ctx, id)
	if err != nil {
		a.Shutdown()
		return nil, nil, fmt.Errorf("open ritual %s: %w", raw, err)
	}
	return a, sess, nil
}

func orDash(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func yesNo(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "yes"
	default:
		return "no"
	}
}
