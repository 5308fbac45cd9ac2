package svc

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"marketetl/internal/config"
	"marketetl/internal/store"
	"marketetl/pkg/marketdata"

	// Import for side-effects: registers the extraction strategies.
	_ "marketetl/pkg/marketdata/stooq"
	_ "marketetl/pkg/marketdata/yahoo"
)

// ServiceContext wires the runtime dependencies of one pipeline execution.
type ServiceContext struct {
	Config *config.Config

	DBConn  sqlx.SqlConn
	Store   *store.Postgres
	Sources []marketdata.Provider
}

// NewServiceContext builds providers and the Postgres store from config.
func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	sourcesCfg := c.Sources.Value
	if sourcesCfg == nil {
		sourcesCfg = marketdata.DefaultConfig()
	}
	sources, err := sourcesCfg.BuildSources()
	if err != nil {
		return nil, fmt.Errorf("build market data sources: %w", err)
	}

	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)

	opts := []store.Option{}
	if c.RedisConfigured() {
		cache, err := redis.NewRedis(c.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, store.WithLatestPriceCache(cache, time.Duration(c.CacheTTL)*time.Second))
	}

	return &ServiceContext{
		Config:  c,
		DBConn:  conn,
		Store:   store.NewPostgres(conn, opts...),
		Sources: sources,
	}, nil
}
