package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"marketetl/internal/cli"
	"marketetl/internal/config"
	"marketetl/internal/etl"
	"marketetl/internal/svc"
)

var configFile = flag.String("f", "etc/etl.yaml", "the config file")

func main() {
	flag.Parse()
	logx.DisableStat()

	cfg := config.MustLoad(*configFile)
	cli.LogConfigSummary(cfg)

	svcCtx, err := svc.NewServiceContext(cfg)
	if err != nil {
		logx.Errorf("bootstrap failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := etl.NewPipeline(
		etl.NewExtractor(svcCtx.Sources, cfg.Backoff()),
		etl.NewLoader(svcCtx.Store),
		svcCtx.Store,
	)

	start, end := cfg.Window()
	if err := pipeline.Run(ctx, cfg.Symbols(), start, end); err != nil {
		logx.Errorf("pipeline run failed: %v", err)
		os.Exit(1)
	}
}
