// Package workload builds the read and write operations the load workers
// issue: user and product lookups, session and user creation.
package workload

import "fmt"

const (
	// DefaultUsers and DefaultProducts size the seeded catalog.
	DefaultUsers    = 10_000
	DefaultProducts = 500

	// Created users draw ids above the seeded range.
	createdUserMin = 10_001
	createdUserMax = 99_999

	// SessionTTLSecs is how long created sessions live in the store.
	SessionTTLSecs = 300
)

// Endpoint names attached to samples.
const (
	EndpointGetUser       = "GET /api/users/:id"
	EndpointGetProduct    = "GET /api/products/:id"
	EndpointGetSession    = "GET /api/sessions/:id"
	EndpointCreateUser    = "POST /api/users"
	EndpointCreateSession = "POST /api/sessions"
)

func UserID(n int) string    { return fmt.Sprintf("usr_%08d", n) }
func ProductID(n int) string { return fmt.Sprintf("prod_%04d", n) }
func SessionID(n uint32) string {
	return fmt.Sprintf("sess_%08x", n)
}

func UserKey(id string) string    { return "user:" + id }
func ProductKey(id string) string { return "product:" + id }
func SessionKey(id string) string { return "session:" + id }
