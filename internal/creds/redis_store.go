package creds

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const (
	keyToken       = "authToken"
	keyDriverID    = "driverId"
	keyDriverName  = "driverName"
	keyVehicleType = "vehicleType"
)

// RedisStore persists the session as a hash per driver install. Writes are
// last-writer-wins per field; Load treats any missing required field as
// not authenticated.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr, password, key string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	m, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Session{}, err
	}
	s := Session{
		Token:       m[keyToken],
		DriverID:    m[keyDriverID],
		DriverName:  m[keyDriverName],
		VehicleType: m[keyVehicleType],
	}
	if !s.complete() {
		return Session{}, ErrNotAuthenticated
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	return r.client.HSet(ctx, r.key, map[string]interface{}{
		keyToken:       s.Token,
		keyDriverID:    s.DriverID,
		keyDriverName:  s.DriverName,
		keyVehicleType: s.VehicleType,
	}).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }
