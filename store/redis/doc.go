// Package redis implements store.Store on Redis through go-redis/v9.
// Every record is a msgpack-encoded value in a single hash keyed by record
// id, and each parent keeps a set of its dependents so deleting a record
// can strip the edges that name it.
//
// The caller owns the client lifecycle; Close never closes it:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithPrefix("app1:"))
//	if err := s.Ping(ctx); err != nil { ... }
package redis
