package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/RunningKuma/matrix-on-vscode/codec"
	"github.com/RunningKuma/matrix-on-vscode/config"
	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/logger"
	"github.com/RunningKuma/matrix-on-vscode/site/matrix"
	"github.com/RunningKuma/matrix-on-vscode/store"
	"github.com/RunningKuma/matrix-on-vscode/tree"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	reg    *prometheus.Registry
	store  store.Store
	client *matrix.Client

	rdb *redis.Client
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger.Configure(cfg.Logging.Level, cfg.Logging.Pretty)
	if cfg.Logging.UseLogFile {
		if err := logger.UseConfigFile(cfg.Logging.LogPath); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg: cfg,
		log: logger.Default().Zerolog(),
		reg: prometheus.NewRegistry(),
	}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	cd := codec.Default()
	if cfg.Matrix.CodecKey != "" {
		cd, err = codec.NewFromHex(cfg.Matrix.CodecKey)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	loc, err := cfg.Matrix.Location()
	if err != nil {
		a.close()
		return nil, err
	}

	a.client = matrix.NewClient(a.store,
		matrix.WithBaseURL(cfg.Matrix.BaseURL),
		matrix.WithTimeout(cfg.Matrix.Timeout),
		matrix.WithRateLimit(cfg.Matrix.RateLimit, cfg.Matrix.Burst),
		matrix.WithCodec(cd),
		matrix.WithMetrics(matrix.NewMetrics(a.reg)),
		matrix.WithLogger(a.log),
		matrix.WithLocation(loc),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Kind {
	case config.StoreMemory:
		a.store = store.NewMemory()
	case config.StoreFile:
		a.store = store.NewFile(a.cfg.Store.Path)
	case config.StoreRedis:
		r := a.cfg.Store.Redis
		rdb, err := store.Connect(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return err
		}
		a.rdb = rdb
		a.store = store.NewRedis(rdb, r.Prefix)
	default:
		return errors.NewError("main", "unknown store kind "+a.cfg.Store.Kind, errors.ErrInitFailed)
	}
	logger.Debugf("Using %s session store", a.cfg.Store.Kind)
	return nil
}

// controller builds a tree controller over the app's client.
func (a *app) controller() (*tree.Controller, error) {
	loc, err := a.cfg.Matrix.Location()
	if err != nil {
		return nil, err
	}
	return tree.NewController(a.client, tree.WithLogger(a.log), tree.WithLocation(loc)), nil
}

func (a *app) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			logger.Warn(err)
		}
	}
	if err := logger.Close(); err != nil {
		logger.Warn(err)
	}
}
