// Package redislock implementa el lock distribuido del job de reporting sobre Redis.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	"github.com/jhoicas/fatoora-api/pkg/config"
)

var _ compliance.JobLocker = (*Locker)(nil)

// releaseScript borra la clave solo si sigue perteneciendo al dueño del token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Connect abre el cliente y verifica la conexión. Sin Addr devuelve (nil, nil): el caller
// usa entonces el lock local.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Locker implementa compliance.JobLocker con SET NX PX.
type Locker struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

// New construye el locker.
func New(client redis.UniversalClient, log zerolog.Logger) *Locker {
	return &Locker{client: client, log: log}
}

// TryLock toma la clave por ttl. ok=false si otra instancia la tiene.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (compliance.JobLease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &lease{l: l, key: key, token: token}, true, nil
}

type lease struct {
	l     *Locker
	key   string
	token string
}

// Extend renueva el ttl de la clave mientras siga siendo de este token.
func (le *lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, le.l.client, []string{le.key}, le.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis pexpire %s: %w", le.key, err)
	}
	if n == 0 {
		return compliance.ErrLeaseLost
	}
	return nil
}

// Release borra la clave si sigue siendo de este token.
func (le *lease) Release() {
	// Contexto propio: el del caller puede estar cancelado al liberar.
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(rctx, le.l.client, []string{le.key}, le.token).Err(); err != nil && err != redis.Nil {
		le.l.log.Warn().Err(err).Str("key", le.key).Msg("no se pudo liberar el lock")
	}
}
