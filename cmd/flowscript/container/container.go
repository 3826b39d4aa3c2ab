// Package container wires the service's components together.
package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowscript/flowscript/common/config"
	"github.com/flowscript/flowscript/common/db"
	"github.com/flowscript/flowscript/common/logger"
	"github.com/flowscript/flowscript/engine/bridge"
	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/history"
	"github.com/flowscript/flowscript/engine/manager"
	"github.com/flowscript/flowscript/engine/nodes"
	"github.com/flowscript/flowscript/engine/registry"
	"github.com/flowscript/flowscript/engine/resolver"
	"github.com/flowscript/flowscript/engine/workflow"
)

// Container holds every shared component of the service.
type Container struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *registry.Registry
	Evaluator *condition.Evaluator
	Resolver  *resolver.Resolver
	Catalog   *workflow.Catalog
	Manager   *manager.Manager
	History   history.Repository
	DB        *db.DB
	Redis     *redis.Client
	Observers []manager.Observer
}

// New builds the component graph from configuration.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, extraObservers ...manager.Observer) (*Container, error) {
	evaluator := condition.NewEvaluator()
	res := resolver.New(evaluator)
	reg := registry.New()

	if err := nodes.RegisterBuiltins(reg, nodes.Deps{
		Evaluator:           evaluator,
		Logger:              log,
		DefaultHumanTimeout: cfg.Engine.DefaultHumanTimeout,
	}); err != nil {
		return nil, fmt.Errorf("failed to register builtin nodes: %w", err)
	}

	c := &Container{
		Config:    cfg,
		Logger:    log,
		Registry:  reg,
		Evaluator: evaluator,
		Resolver:  res,
		Catalog:   workflow.NewCatalog(),
		Observers: extraObservers,
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Redis = rdb
		publisher := bridge.NewPublisher(rdb, log)
		c.Observers = append(c.Observers, publisher.Attach)
		log.Info("redis event mirror enabled", "addr", cfg.Redis.Addr)
	}

	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := history.NewPostgresRepository(database)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		c.DB = database
		c.History = repo
		log.Info("execution history enabled")
	}

	c.Manager = manager.New(manager.Options{
		Registry:       reg,
		Resolver:       res,
		Logger:         log,
		SubscribeGrace: cfg.Engine.SubscribeGrace,
		MaxFlowDepth:   cfg.Engine.MaxFlowDepth,
		History:        c.History,
		Observers:      c.Observers,
	})

	return c, nil
}

// Close releases held connections.
func (c *Container) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
