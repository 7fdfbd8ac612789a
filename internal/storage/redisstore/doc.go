// Package redisstore implements the token store on Redis.
//
// Each record is a JSON value under {prefix}t:{id} with a secret index
// entry {prefix}s:{hash} pointing at the ID. Both keys carry a safety TTL
// of ExpiresAt plus a retention window, so records are bounded even when
// no cleaner runs, while the cleaner still removes them promptly after
// expiry. Keys of one record live in different hash slots, so Redis
// Cluster is not supported; use a single node or Sentinel.
package redisstore
