package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"omnidex/config"
	"omnidex/core/events"
	"omnidex/core/genesis"
	"omnidex/core/ledger"
	"omnidex/core/state"
	"omnidex/native/circuitbreaker"
	"omnidex/native/omnipool"
	"omnidex/native/router"
	"omnidex/native/stableswap"
	"omnidex/native/xyk"
	"omnidex/observability/logging"
	"omnidex/observability/metrics"
	"omnidex/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the runtime configuration file")
	genesisPath := flag.String("genesis", "", "path to a YAML genesis pool description to apply")
	flag.Parse()

	if err := run(*configPath, *genesisPath); err != nil {
		fmt.Fprintf(os.Stderr, "omnidexctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, genesisPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.SetupWithRotation(cfg.Service, cfg.Environment, logging.RotationConfig{
		Filename:   cfg.Logging.Filename,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	led := ledger.New(mgr)
	registry := ledger.NewRegistry(mgr)

	poolParams, err := cfg.OmnipoolParams()
	if err != nil {
		return err
	}
	routerParams, err := cfg.RouterParams()
	if err != nil {
		return err
	}
	breakerParams, err := cfg.BreakerParams()
	if err != nil {
		return err
	}

	amm := metrics.AMM()
	emitter := events.NewLogEmitter(logger.With("component", "events"))

	breaker := circuitbreaker.NewBreaker(circuitbreaker.NewState(mgr), breakerParams)
	breaker.SetMetrics(amm)

	pool, err := omnipool.NewEngine(omnipool.NewState(mgr), led, poolParams)
	if err != nil {
		return err
	}
	pool.SetRegistry(registry)
	pool.SetLimiter(breaker)
	pool.SetTxRunner(mgr)
	pool.SetEmitter(emitter)

	stable := stableswap.NewEngine(stableswap.NewState(mgr), led)
	stable.SetLimiter(breaker)
	stable.SetTxRunner(mgr)
	stable.SetEmitter(emitter)

	pairs := xyk.NewEngine(xyk.NewState(mgr), led)
	pairs.SetLimiter(breaker)
	pairs.SetTxRunner(mgr)
	pairs.SetEmitter(emitter)

	routes := router.NewEngine(router.NewState(mgr), led, routerParams)
	routes.SetTxRunner(mgr)
	routes.SetEmitter(emitter)
	routes.SetLogger(logger)
	routes.SetMetrics(amm)
	routes.RegisterExecutor(router.KindOmnipool, omnipool.NewExecutor(pool))
	routes.RegisterExecutor(router.KindStableswap, stableswap.NewExecutor(stable))
	routes.RegisterExecutor(router.KindXYK, xyk.NewExecutor(pairs))

	if genesisPath != "" {
		spec, err := config.LoadGenesis(genesisPath)
		if err != nil {
			return err
		}
		rt := genesis.Runtime{
			Ledger:     led,
			Registry:   registry,
			Omnipool:   pool,
			Stableswap: stable,
			XYK:        pairs,
		}
		if err := genesis.Apply(spec, rt); err != nil {
			return err
		}
		logger.Info("genesis applied",
			"omnipoolAssets", len(spec.Omnipool),
			"stableswapPools", len(spec.Stableswap),
			"xykPairs", len(spec.XYK))
	}

	assets, err := pool.State().ListAssets()
	if err != nil {
		return err
	}
	logger.Info("state initialised",
		"dataDir", cfg.DataDir,
		"hubAsset", pool.HubAssetID(),
		"omnipoolAssets", len(assets))
	return nil
}
