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

	a := app.Bootstrap(ctx, "snapshot-export")
	defer a.Close()

	a.Logger.Info("Starting snapshot export")

	collection := a.Store.Collection(a.Cfg.Store.Collection)
	svc := service.NewSnapshotExport(a.Cfg, collection, a.Logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		a.Fail("Snapshot export aborted", err)
	}
	summary.Log(a.Logger, "Snapshot export done")
	fmt.Println(summary.String())
}
