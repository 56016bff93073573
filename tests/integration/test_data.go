package integration

import (
	"fmt"
	"time"
)

// Shared password for seeded accounts; strong enough to clear validation.
const testPassword = "TestPassword123!"

// TestUser returns unique credentials for a seeded account. The nanosecond
// timestamp keeps emails unique across tests sharing one database.
func TestUser(suffix string) (email, password string) {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix), testPassword
}
