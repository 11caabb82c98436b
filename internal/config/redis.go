package config

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/kelseyhightower/envconfig"
    "github.com/redis/go-redis/extra/redisotel/v9"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

// RedisConfig locates the Redis server used for rate limiting and the
// restaurant response cache.  REDIS_ADDR wins over REDIS_HOST/REDIS_PORT.
type RedisConfig struct {
    Addr     string `envconfig:"REDIS_ADDR"`
    Host     string `envconfig:"REDIS_HOST" default:"localhost"`
    Port     string `envconfig:"REDIS_PORT" default:"6379"`
    Password string `envconfig:"REDIS_PASSWORD"`
    DB       int    `envconfig:"REDIS_DB" default:"0"`
    TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

func (c RedisConfig) address() string {
    if c.Addr != "" {
        return c.Addr
    }
    return c.Host + ":" + c.Port
}

// NewRedisClient connects to Redis and instruments the client for
// tracing.  It returns nil when Redis is unreachable; callers then run
// without caching and rate limiting.
func NewRedisClient(log *zap.Logger) *redis.Client {
    var c RedisConfig
    if err := envconfig.Process("", &c); err != nil {
        log.Warn("invalid redis config, redis disabled", zap.Error(err))
        return nil
    }
    var tlsConf *tls.Config
    if c.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      c.address(),
        Password:  c.Password,
        DB:        c.DB,
        TLSConfig: tlsConf,
    })
    if err := redisotel.InstrumentTracing(client); err != nil {
        log.Warn("redis tracing instrumentation failed", zap.Error(err))
    }

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Warn("redis unavailable, cache and rate limit disabled", zap.String("addr", c.address()), zap.Error(err))
        _ = client.Close()
        return nil
    }
    return client
}
