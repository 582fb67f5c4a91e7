// Package redis provides a Redis-backed implementation of the client registry and grant store.
//
// Use this backend when several keyper instances must share issued codes. Key layout:
//
//	<prefix>client:<client_id>          client record (JSON)
//	<prefix>grant:<sha256(code)>        grant record (JSON), TTL = remaining lifetime + grace
//
// Grants are created with SET NX PX and redeemed with GETDEL (Redis 6.2+), which makes
// redemption single-use across instances without Lua scripts.
//
// Example usage:
//
//	store, err := redis.New(redis.Config{Addr: "localhost:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
package redis
