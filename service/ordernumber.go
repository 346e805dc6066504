package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const maxOrderNumberAttempts = 5

// NewOrderNumber formats ORD-<YYYYMMDD>-<5 digits> using the UTC date of now.
// Uniqueness is enforced by the order store, not here.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%05d", now.UTC().Format("20060102"), rand.IntN(100000))
}
