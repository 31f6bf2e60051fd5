package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payment:status:"

var ErrMiss = errors.New("payment status not cached")

// ConnectRedis opens a client for addr and pings it.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Println("Redis connected (payment status cache)")
	return client, nil
}

// StatusCache keeps terminal payment records in Redis. Terminal records never
// change again, so entries are never invalidated, only expired.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func (c *StatusCache) OnTerminal(ctx context.Context, rec *models.PaymentRecord) error {
	return c.Put(ctx, rec)
}

// Put stores rec if it is terminal; pending records are ignored.
func (c *StatusCache) Put(ctx context.Context, rec *models.PaymentRecord) error {
	if !rec.Status.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+rec.ID.String(), data, c.ttl).Err()
}

func (c *StatusCache) Get(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	data, err := c.client.Get(ctx, keyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var rec models.PaymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
