package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/lessonhub/config"
)

// ConnectRedis builds the session store client. Cluster wins over sentinel,
// sentinel over a direct connection.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	client, desc, err := newRedisClient(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", desc)
	}
	return client, nil
}

// newRedisClient returns the client plus a credential-free description for logs.
//
//nolint:ireturn // see ConnectRedis.
func newRedisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	switch {
	case cfg.UseCluster:
		opts, err := clusterOptions(cfg)
		if err != nil {
			return nil, "", err
		}
		return redis.NewClusterClient(opts), "cluster:" + strings.Join(opts.Addrs, ","), nil

	case cfg.UseSentinel:
		nodes := trimAll(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
			DB:               cfg.DB,
		}), "sentinel:" + cfg.SentinelMasterName, nil

	default:
		opts, err := directOptions(cfg)
		if err != nil {
			return nil, "", err
		}
		return redis.NewClient(opts), opts.Addr, nil
	}
}

// directOptions accepts either a redis:// or rediss:// URL or a bare host:port.
func directOptions(cfg config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("redis direct configuration requires a URI")
	}
	if !isRedisURL(uri) {
		return &redis.Options{Addr: uri, Password: cfg.Password, DB: cfg.DB}, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	return opts, nil
}

// clusterOptions uses CLUSTER_NODES, falling back to the single URI as a seed node.
func clusterOptions(cfg config.RedisConfig) (*redis.ClusterOptions, error) {
	opts := &redis.ClusterOptions{Addrs: trimAll(cfg.ClusterNodes), Password: cfg.Password}
	if len(opts.Addrs) > 0 {
		return opts, nil
	}

	seed, err := directOptions(cfg)
	if err != nil {
		return nil, errors.New("redis cluster configuration requires at least one address")
	}
	opts.Addrs = []string{seed.Addr}
	opts.Username = seed.Username
	opts.Password = seed.Password
	opts.TLSConfig = seed.TLSConfig
	return opts, nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
