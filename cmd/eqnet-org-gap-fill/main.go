package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/research-patron/kikidoko/internal/app"
	"github.com/research-patron/kikidoko/internal/matcher"
	"github.com/research-patron/kikidoko/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.Bootstrap(ctx, "eqnet-org-gap-fill")
	defer a.Close()

	a.Logger.Info("Starting EQNET organization gap fill")

	client := matcher.NewClient(a.Cfg.Eqnet.SearchURL, a.Cfg.Eqnet.Timeout, a.Logger)
	collection := a.Store.Collection(a.Cfg.Store.Collection)
	svc := service.NewOrgGapFill(a.Cfg, collection, client, a.Logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		a.Fail("Gap fill aborted", err)
	}
	summary.Log(a.Logger, "Gap fill done")
	fmt.Println(summary.String())
}
