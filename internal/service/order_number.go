package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds the human-readable order token: a UTC timestamp
// prefix keeps numbers roughly sortable for support lookups, the random
// suffix makes them globally unique.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), suffix)
}
