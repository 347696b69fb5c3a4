package utils

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/empire/config"
)

func registrationKey(ip string, day time.Time) string {
	return "reg:succday:" + ip + ":" + day.UTC().Format("20060102")
}

// RegistrationAllowed reports whether ip is still under the daily registration cap.
// Without Redis or a configured cap every registration is allowed.
func RegistrationAllowed(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	cli := GetRedis()
	if limit <= 0 || cli == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := cli.Get(ctx, registrationKey(ip, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		return true // fail-open
	}
	return n < limit
}

// RecordRegistration counts a new registration from ip for today.
func RecordRegistration(ip string) {
	cli := GetRedis()
	if cli == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	now := time.Now().UTC()
	key := registrationKey(ip, now)
	if err := cli.Incr(ctx, key).Err(); err == nil {
		ttl := time.Until(now.Truncate(24 * time.Hour).Add(24 * time.Hour))
		_ = cli.Expire(ctx, key, ttl).Err()
	}
}
