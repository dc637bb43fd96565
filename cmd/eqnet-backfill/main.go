package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/research-patron/kikidoko/internal/app"
	"github.com/research-patron/kikidoko/internal/matcher"
	"github.com/research-patron/kikidoko/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.Bootstrap(ctx, "eqnet-backfill")
	defer a.Close()

	a.Logger.Info("Starting EQNET match backfill")

	client := matcher.NewClient(a.Cfg.Eqnet.SearchURL, a.Cfg.Eqnet.Timeout, a.Logger)
	var cache *matcher.Cache
	if a.Cfg.Eqnet.CacheEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     a.Cfg.Redis.Addr,
			Password: a.Cfg.Redis.Password,
			DB:       a.Cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = matcher.NewCache(redisClient, a.Cfg.Eqnet.CacheKey, a.Cfg.Eqnet.CacheTTL, a.Logger)
	}

	// 主登记簿拉不下来时整个运行中止（匹配没有输入就没有意义）
	candidates, _, err := matcher.LoadMaster(ctx, client, cache)
	if err != nil {
		a.Fail("Failed to load EQNET master", err)
	}

	m := matcher.New(candidates, matcher.Config{
		MaxCandidatePool: a.Cfg.Eqnet.MaxCandidatePool,
		CandidateLimit:   a.Cfg.Eqnet.CandidateLimit,
		Thresholds: matcher.Thresholds{
			HighScore:     a.Cfg.Eqnet.HighScore,
			HighLoneScore: a.Cfg.Eqnet.HighLoneScore,
			HighMargin:    a.Cfg.Eqnet.HighMargin,
			MediumScore:   a.Cfg.Eqnet.MediumScore,
			MediumMargin:  a.Cfg.Eqnet.MediumMargin,
		},
	})

	collection := a.Store.Collection(a.Cfg.Store.Collection)
	svc := service.NewEqnetBackfill(a.Cfg, collection, m, a.Logger)

	summary, err := svc.Run(ctx)
	if err != nil {
		a.Fail("EQNET backfill aborted", err)
	}
	summary.Log(a.Logger, "EQNET backfill done")
	fmt.Println(summary.String())
}
