package store

import (
	"context"
	"strconv"

	"codeberg.org/kvo/std/errors"
	"github.com/redis/go-redis/v9"

	"github.com/RunningKuma/matrix-on-vscode/site"
)

// Redis is a Store backed by a Redis database. Keys are namespaced by
// prefix so several profiles can share one database.
type Redis struct {
	client *redis.Client
	prefix string
}

// Connect opens a Redis client and verifies the connection.
func Connect(ctx context.Context, addr, pwd string, idx int) (*redis.Client, error) {
	if idx < 0 || idx > 15 {
		return nil, errors.New("database index must be between 0 and 15", nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pwd,
		DB:       idx,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.New("cannot reach redis", errors.New(err.Error(), nil))
	}
	return client, nil
}

// NewRedis returns a Store using client. An empty prefix defaults to
// "matrix".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "matrix"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) cookieKey() string {
	return r.prefix + ":cookie"
}

func (r *Redis) statusKey() string {
	return r.prefix + ":userStatus"
}

func (r *Redis) Cookie(ctx context.Context) (string, error) {
	cookie, err := r.client.Get(ctx, r.cookieKey()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.New("cannot get cookie", errors.New(err.Error(), nil))
	}
	return cookie, nil
}

func (r *Redis) SetCookie(ctx context.Context, cookie string) error {
	if err := r.client.Set(ctx, r.cookieKey(), cookie, 0).Err(); err != nil {
		return errors.New("cannot set cookie", errors.New(err.Error(), nil))
	}
	return nil
}

func (r *Redis) UserStatus(ctx context.Context) (site.UserStatus, error) {
	res, err := r.client.HGetAll(ctx, r.statusKey()).Result()
	if err != nil {
		return site.UserStatus{}, errors.New("cannot get user status", errors.New(err.Error(), nil))
	}
	signedIn, _ := strconv.ParseBool(res["signedIn"])
	return site.UserStatus{SignedIn: signedIn, Username: res["username"]}, nil
}

func (r *Redis) SetUserStatus(ctx context.Context, status site.UserStatus) error {
	err := r.client.HSet(ctx, r.statusKey(),
		"signedIn", strconv.FormatBool(status.SignedIn),
		"username", status.Username,
	).Err()
	if err != nil {
		return errors.New("cannot set user status", errors.New(err.Error(), nil))
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.cookieKey(), r.statusKey()).Err(); err != nil {
		return errors.New("cannot clear session", errors.New(err.Error(), nil))
	}
	return nil
}
