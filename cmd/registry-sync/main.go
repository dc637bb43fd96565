package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/research-patron/kikidoko/internal/app"
	"github.com/research-patron/kikidoko/internal/runner"
	"github.com/research-patron/kikidoko/internal/service"
	"github.com/research-patron/kikidoko/internal/upsert"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.Bootstrap(ctx, "registry-sync")
	defer a.Close()

	a.Logger.Info("Starting source registry sync")

	collection := a.Store.Collection(a.Cfg.Store.Collection)
	retry := runner.RetryPolicy{
		MaxRetries: a.Cfg.Run.MaxRetries,
		BaseDelay:  a.Cfg.Run.BaseDelay,
		MaxDelay:   a.Cfg.Run.MaxDelay,
		Logger:     a.Logger,
	}
	engine := upsert.NewIndexedEngine(collection, retry, a.Logger)
	svc := service.NewRegistrySync(a.Cfg, collection, engine, a.Logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		a.Fail("Registry sync aborted", err)
	}
	summary.Log(a.Logger, "Registry sync done")
	fmt.Println(summary.String())
}
