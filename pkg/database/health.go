package database

import "context"

// Health is the database component's status as reported by CheckHealth.
type Health struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// CheckHealth pings the database and reports the result without returning
// an error itself, so callers can aggregate multiple component checks.
func (c *Client) CheckHealth(ctx context.Context) Health {
	if err := c.Ping(ctx); err != nil {
		return Health{Reachable: false, Error: err.Error()}
	}
	return Health{Reachable: true}
}
