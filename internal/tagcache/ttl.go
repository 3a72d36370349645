package tagcache

import "time"

// TTLSet groups the cache lifetimes used by read paths. Short covers
// fast-moving listings, Medium entity detail, Long near-static data.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}
