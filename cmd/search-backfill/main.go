package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/research-patron/kikidoko/internal/app"
	"github.com/research-patron/kikidoko/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.Bootstrap(ctx, "search-backfill")
	defer a.Close()

	a.Logger.Info("Starting search field backfill")

	collection := a.Store.Collection(a.Cfg.Store.Collection)
	stats := a.Store.Collection(a.Cfg.Store.StatsCollection)
	svc := service.NewSearchBackfill(a.Cfg, collection, stats, a.Logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		a.Fail("Search backfill aborted", err)
	}
	summary.Log(a.Logger, "Search backfill done")
	fmt.Println(summary.String())
}
