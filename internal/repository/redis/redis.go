// Package redis holds the Redis-backed coordination stores of the chat service:
// presence mirror, conversation lock, idempotency keys and push tokens.
package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
