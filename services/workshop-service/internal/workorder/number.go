package workorder

import (
	"fmt"
	"math/rand"
	"time"
)

// NewNumber produces a work-order number like WO-20260901-4821. The random
// suffix can collide within a day, so creation retries on a unique-constraint
// violation rather than trusting the draw.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("WO-%s-%04d", now.UTC().Format("20060102"), rand.Intn(10000))
}
