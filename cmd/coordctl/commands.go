package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coordkit/coordkit/internal/migrations"
	"github.com/coordkit/coordkit/pkg/distributed/xdlock"
	"github.com/coordkit/coordkit/pkg/distributed/xsemaphore"
	"github.com/coordkit/coordkit/pkg/resilience/xbreaker"
	"github.com/coordkit/coordkit/pkg/storage/xcache"
	"github.com/coordkit/coordkit/pkg/storage/xmongo"
	"github.com/coordkit/coordkit/pkg/util/xid"
	"github.com/coordkit/coordkit/pkg/util/xjson"
	"github.com/coordkit/coordkit/pkg/xnamespace"
)

func createCommands() []*cli.Command {
	return []*cli.Command{
		lockCommand(),
		semaphoreCommand(),
		breakerCommand(),
		cacheCommand(),
		migrateCommand(),
	}
}

func loadConfigFromCmd(_ *cli.Command) (*Config, error) {
	return loadConfig(configPath)
}

// =============================================================================
// lock
// =============================================================================

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "acquire/release the distributed mutex primitive",
		Commands: []*cli.Command{
			{
				Name:      "acquire",
				Usage:     "acquire key for owner (generated when omitted), blocking until held or timed out",
				ArgsUsage: "<key> [owner]",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "ttl", Value: 30 * time.Second},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, owner, err := keyAndIdentity(cmd)
					if err != nil {
						return err
					}
					provider, err := newLockProvider(ctx, cmd)
					if err != nil {
						return err
					}
					handle, err := provider.Acquire(ctx, key, owner, cmd.Duration("ttl"))
					if err != nil {
						return err
					}
					ttlMs, _ := handle.TTL()
					fmt.Printf("acquired %s owner=%s ttl_ms=%d\n", key, owner, ttlMs)
					return nil
				},
			},
			{
				Name:      "release",
				Usage:     "release key, only succeeds if owner currently holds it",
				ArgsUsage: "<key> <owner>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, owner, err := twoArgs(cmd)
					if err != nil {
						return err
					}
					provider, err := newLockProvider(ctx, cmd)
					if err != nil {
						return err
					}
					handle, err := provider.Acquire(ctx, key, owner, 0)
					if err != nil {
						return err
					}
					if err := handle.Release(ctx); err != nil {
						return err
					}
					fmt.Printf("released %s\n", key)
					return nil
				},
			},
			{
				Name:      "force-release",
				Usage:     "remove key unconditionally, regardless of current owner",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: lock force-release requires exactly one argument")
					}
					provider, err := newLockProvider(ctx, cmd)
					if err != nil {
						return err
					}
					if err := provider.ForceRelease(ctx, cmd.Args().First()); err != nil {
						return err
					}
					fmt.Printf("force released %s\n", cmd.Args().First())
					return nil
				},
			},
			{
				Name:      "inspect",
				Usage:     "show the current owner and TTL of key",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: lock inspect requires exactly one argument")
					}
					provider, err := newLockProvider(ctx, cmd)
					if err != nil {
						return err
					}
					owner, ttl, held, err := provider.Inspect(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("held=%v owner=%q ttl=%s\n", held, owner, ttl)
					return nil
				},
			},
		},
	}
}

func newLockProvider(ctx context.Context, cmd *cli.Command) (*xdlock.Provider, error) {
	cfg, err := loadConfigFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	ns, err := xnamespace.New(cfg.Namespace, ":")
	if err != nil {
		return nil, err
	}

	var adapter xdlock.Adapter
	switch cfg.Backend {
	case "", "memory":
		adapter = xdlock.NewMemoryAdapter()
	case "redis":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xdlock.NewNativeRedisAdapter(client)
		if err != nil {
			return nil, err
		}
	case "sql":
		pool, err := newPGXPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xdlock.NewSQLAdapter(pool)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("coordctl: unknown backend %q", cfg.Backend)
	}

	return xdlock.NewProvider(adapter, ns)
}

// =============================================================================
// semaphore
// =============================================================================

func semaphoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "semaphore",
		Usage: "acquire/release slots of the bounded-concurrency primitive",
		Commands: []*cli.Command{
			{
				Name:      "acquire",
				Usage:     "try to reserve one slot of key for slot-id (generated when omitted)",
				ArgsUsage: "<key> [slot-id]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 1},
					&cli.DurationFlag{Name: "ttl", Value: 30 * time.Second},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, slotID, err := keyAndIdentity(cmd)
					if err != nil {
						return err
					}
					provider, err := newSemaphoreProvider(ctx, cmd)
					if err != nil {
						return err
					}
					handle, err := provider.TryAcquire(ctx, key, slotID,
						cmd.Int("limit"), cmd.Duration("ttl"))
					if err != nil {
						return err
					}
					if handle == nil {
						fmt.Println("all slots taken, none acquired")
						return nil
					}
					limit, _ := handle.Limit()
					fmt.Printf("acquired slot key=%s slot_id=%s limit=%d\n", key, slotID, limit)
					return nil
				},
			},
			{
				Name:      "release",
				Usage:     "release slot-id's slot of key",
				ArgsUsage: "<key> <slot-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, slotID, err := twoArgs(cmd)
					if err != nil {
						return err
					}
					provider, err := newSemaphoreProvider(ctx, cmd)
					if err != nil {
						return err
					}
					handle, err := provider.TryAcquire(ctx, key, slotID, 0, 0)
					if err != nil {
						return err
					}
					if handle == nil {
						return xsemaphore.ErrSlotNotHeld
					}
					if err := handle.Release(ctx); err != nil {
						return err
					}
					fmt.Printf("released slot key=%s slot_id=%s\n", key, slotID)
					return nil
				},
			},
			{
				Name:      "state",
				Usage:     "show the stored limit and live slots of key",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: semaphore state requires exactly one argument")
					}
					provider, err := newSemaphoreProvider(ctx, cmd)
					if err != nil {
						return err
					}
					state, err := provider.Inspect(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Println(xjson.Pretty(state))
					return nil
				},
			},
			{
				Name:      "force-release",
				Usage:     "clear every slot of key, regardless of holder",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: semaphore force-release requires exactly one argument")
					}
					provider, err := newSemaphoreProvider(ctx, cmd)
					if err != nil {
						return err
					}
					if err := provider.ForceReleaseAll(ctx, cmd.Args().First()); err != nil {
						return err
					}
					fmt.Printf("force released all slots of %s\n", cmd.Args().First())
					return nil
				},
			},
		},
	}
}

func newSemaphoreProvider(ctx context.Context, cmd *cli.Command) (*xsemaphore.Provider, error) {
	cfg, err := loadConfigFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	ns, err := xnamespace.New(cfg.Namespace, ":")
	if err != nil {
		return nil, err
	}

	var adapter xsemaphore.Adapter
	switch cfg.Backend {
	case "", "memory":
		adapter = xsemaphore.NewMemoryAdapter()
	case "redis":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xsemaphore.NewRedisAdapter(client)
		if err != nil {
			return nil, err
		}
	case "sql":
		pool, err := newPGXPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xsemaphore.NewSQLAdapter(pool)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("coordctl: unknown backend %q", cfg.Backend)
	}

	return xsemaphore.NewProvider(adapter, ns)
}

// =============================================================================
// breaker
// =============================================================================

func breakerCommand() *cli.Command {
	return &cli.Command{
		Name:  "breaker",
		Usage: "inspect the persisted circuit-breaker primitive's state",
		Commands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "show the current state for key",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: breaker status requires exactly one argument")
					}
					provider, err := newBreakerProvider(ctx, cmd)
					if err != nil {
						return err
					}
					state, err := provider.State(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("state=%s\n", state)
					return nil
				},
			},
			{
				Name:      "reset",
				Usage:     "force key back to the closed state and clear its metrics",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: breaker reset requires exactly one argument")
					}
					provider, err := newBreakerProvider(ctx, cmd)
					if err != nil {
						return err
					}
					if err := provider.Reset(ctx, cmd.Args().First()); err != nil {
						return err
					}
					fmt.Printf("reset %s to closed\n", cmd.Args().First())
					return nil
				},
			},
			{
				Name:      "isolate",
				Usage:     "force key open; only reset re-admits traffic",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: breaker isolate requires exactly one argument")
					}
					provider, err := newBreakerProvider(ctx, cmd)
					if err != nil {
						return err
					}
					if err := provider.Isolate(ctx, cmd.Args().First()); err != nil {
						return err
					}
					fmt.Printf("isolated %s\n", cmd.Args().First())
					return nil
				},
			},
		},
	}
}

func newBreakerProvider(ctx context.Context, cmd *cli.Command) (*xbreaker.Provider, error) {
	cfg, err := loadConfigFromCmd(cmd)
	if err != nil {
		return nil, err
	}

	var adapter *xbreaker.Adapter
	switch cfg.Backend {
	case "", "memory":
		adapter = xbreaker.NewMemoryAdapter()
	case "redis":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xbreaker.NewNativeRedisAdapter(client, cfg.Namespace+":")
		if err != nil {
			return nil, err
		}
	case "sql":
		pool, err := newPGXPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		adapter, err = xbreaker.NewSQLAdapter(pool)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("coordctl: unknown backend %q", cfg.Backend)
	}

	policy := xbreaker.NewCountBasedPolicy()
	return xbreaker.NewProvider(adapter, policy)
}

// =============================================================================
// cache
// =============================================================================

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "read/write the key-value cache primitive",
		Commands: []*cli.Command{
			{
				Name:      "get",
				ArgsUsage: "<key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("coordctl: cache get requires exactly one argument")
					}
					cache, err := newCache(ctx, cmd)
					if err != nil {
						return err
					}
					value, found, err := cache.Get(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					if !found {
						fmt.Println("(not found)")
						return nil
					}
					fmt.Println(string(value))
					return nil
				},
			},
			{
				Name:      "put",
				ArgsUsage: "<key> <value>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "ttl"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					key, value, err := twoArgs(cmd)
					if err != nil {
						return err
					}
					cache, err := newCache(ctx, cmd)
					if err != nil {
						return err
					}
					if err := cache.Put(ctx, key, []byte(value), cmd.Duration("ttl")); err != nil {
						return err
					}
					fmt.Printf("put %s\n", key)
					return nil
				},
			},
		},
	}
}

func newCache(ctx context.Context, cmd *cli.Command) (xcache.Cache, error) {
	cfg, err := loadConfigFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "", "memory":
		mem, err := xcache.NewMemory()
		if err != nil {
			return nil, err
		}
		return xcache.NewMemoryCache(mem), nil
	case "redis":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		rdb, err := xcache.NewRedis(client)
		if err != nil {
			return nil, err
		}
		return xcache.NewRedisCache(rdb), nil
	case "sql":
		pool, err := newPGXPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return xcache.NewSQLCache(pool)
	case "mongo":
		if cfg.MongoURI == "" || cfg.MongoDB == "" {
			return nil, fmt.Errorf("coordctl: backend %q requires mongo_uri and mongo_db", cfg.Backend)
		}
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, err
		}
		mg, err := xmongo.New(client)
		if err != nil {
			return nil, err
		}
		return xcache.NewMongoCache(ctx, mg, cfg.MongoDB, "cache_entry")
	default:
		return nil, fmt.Errorf("coordctl: unknown backend %q for cache", cfg.Backend)
	}
}

// =============================================================================
// migrate
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back the SQL schema for the lock/breaker/semaphore/cache adapters",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply every pending migration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					db, err := openMigrationDB(cmd)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := migrations.Up(db); err != nil {
						return err
					}
					fmt.Println("migrations applied")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "roll back the most recently applied migration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					db, err := openMigrationDB(cmd)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := migrations.Down(db); err != nil {
						return err
					}
					fmt.Println("migration rolled back")
					return nil
				},
			},
		},
	}
}

func openMigrationDB(cmd *cli.Command) (*sql.DB, error) {
	cfg, err := loadConfigFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.SQLDSN == "" {
		return nil, fmt.Errorf("coordctl: migrate requires sql_dsn")
	}
	return sql.Open("pgx", cfg.SQLDSN)
}

// =============================================================================
// shared helpers
// =============================================================================

func twoArgs(cmd *cli.Command) (string, string, error) {
	if cmd.Args().Len() != 2 {
		return "", "", fmt.Errorf("coordctl: %s requires exactly two arguments", cmd.Name)
	}
	return cmd.Args().Get(0), cmd.Args().Get(1), nil
}

// keyAndIdentity returns the key plus the caller-supplied owner/slot
// identity, generating a sonyflake one when the second argument is omitted
// — each coordctl invocation is a fresh process that needs a unique
// identity of its own.
func keyAndIdentity(cmd *cli.Command) (string, string, error) {
	switch cmd.Args().Len() {
	case 1:
		id, err := xid.NewString()
		if err != nil {
			return "", "", err
		}
		return cmd.Args().First(), id, nil
	case 2:
		return cmd.Args().Get(0), cmd.Args().Get(1), nil
	default:
		return "", "", fmt.Errorf("coordctl: %s requires <key> and an optional identity", cmd.Name)
	}
}

func newRedisClient(cfg *Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("coordctl: backend %q requires redis_addr", cfg.Backend)
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), nil
}

func newPGXPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg.SQLDSN == "" {
		return nil, fmt.Errorf("coordctl: backend %q requires sql_dsn", cfg.Backend)
	}
	return pgxpool.New(ctx, cfg.SQLDSN)
}
