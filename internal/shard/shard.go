package shard

import (
	"hash/fnv"
)

// ID is a stripe number in [0, n).
type ID int

// ForKey maps an arbitrary string key (a match ID, an object key) onto one of
// n stripes. n must be positive.
func ForKey(key string, n int) ID {
	h := fnv.New32a()
	h.Write([]byte(key))
	return ID(h.Sum32() % uint32(n))
}
