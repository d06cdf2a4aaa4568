package storage

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"TC/configs"
	"TC/utils"
)

// Source owns the pooled redis client every store operation borrows from.
type Source struct {
	client *redis.Client
}

var (
	sharedSource *Source
	sourceOnce   sync.Once
	sourceErr    error
)

// GetSource returns the process-wide source, dialing it on first use from
// configs.RedisLink.
func GetSource() (*Source, error) {
	sourceOnce.Do(func() {
		sharedSource, sourceErr = NewSource(configs.RedisLink)
	})
	return sharedSource, sourceErr
}

// NewSource dials link and verifies the server answers before handing the
// pool out. Tests use this directly to avoid the shared singleton.
func NewSource(link string) (*Source, error) {
	opts, err := redis.ParseURL(link)
	if err != nil {
		return nil, utils.WrapStoreErr("parse redis url", err)
	}
	opts.PoolSize = configs.RedisPoolSize
	opts.DialTimeout = configs.DialTimeout
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), configs.DialTimeout)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.WrapStoreErr("ping", err)
	}
	configs.DPrintf("redis source ready at %v, pool size %v", opts.Addr, opts.PoolSize)
	return &Source{client: client}, nil
}

func (s *Source) Client() *redis.Client {
	return s.client
}

func (s *Source) Close() error {
	return s.client.Close()
}
