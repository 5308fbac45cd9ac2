// Package cache centralises the Redis key layout for the latest-price mirror.
package cache

import (
	"fmt"
	"strings"
)

// Namespace is the Redis key prefix for this application.
const Namespace = "marketetl"

// PriceLatestKey returns the key holding the most recent loaded close for a
// symbol.
func PriceLatestKey(symbol string) string {
	return fmt.Sprintf("%s:price:latest:%s", Namespace, strings.ToUpper(strings.TrimSpace(symbol)))
}
