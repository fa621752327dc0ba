package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/smartswap/params"
	"github.com/uhyunpark/smartswap/pkg/api"
	"github.com/uhyunpark/smartswap/pkg/app/smartswap"
	"github.com/uhyunpark/smartswap/pkg/pricesource"
	"github.com/uhyunpark/smartswap/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default ./config.yaml if present)")
	envPath := flag.String("env", "", ".env file (default ./.env if present)")
	flag.Parse()

	cfg, err := params.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLogger(cfg.Log.File)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Price source (fixed for the life of the process) ----
	opts, err := cfg.PriceSourceOptions()
	if err != nil {
		sugar.Fatalw("price_source_config_invalid", "err", err)
	}
	source, err := pricesource.New(ctx, opts)
	if err != nil {
		sugar.Fatalw("price_source_init_failed", "kind", opts.Kind, "err", err)
	}
	sugar.Infow("price_source_selected", "kind", opts.Kind, "name", source.Name())

	// ---- App + API ----
	app := smartswap.NewApp(source, sugar)
	server := api.NewServer(app, cfg.API, sugar)

	if err := server.Run(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		os.Exit(1)
	}
	sugar.Infow("shutdown_complete")
}
