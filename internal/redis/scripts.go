package redisclient

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// processScript updates status and updatedAt of an existing appointment hash
// and returns the whole hash. Missing hashes yield a nil reply. updatedAt
// never moves backwards, so a stale redelivery cannot undo a newer write. A
// COMPLETED hash is left untouched unless the update is COMPLETED too.
var processScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
if redis.call("HGET", KEYS[1], "status") == "COMPLETED" and ARGV[1] ~= "COMPLETED" then
  return redis.call("HGETALL", KEYS[1])
end
local updated = ARGV[2]
local current = redis.call("HGET", KEYS[1], "updatedAt")
if current and current > updated then
  updated = current
end
redis.call("HSET", KEYS[1], "status", ARGV[1], "updatedAt", updated)
return redis.call("HGETALL", KEYS[1])
`)

// hashFromReply converts a flat HGETALL script reply into a map.
func hashFromReply(reply any) (map[string]string, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply %T", reply)
	}
	h := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		h[asString(values[i])] = asString(values[i+1])
	}
	return h, nil
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}
