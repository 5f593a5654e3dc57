package instance

import (
	"os"

	"github.com/angelmondragon/pickflow-backend/pkg/env"
)

// GetID returns an identifier for the running process. Platform dyno names
// win over WORKER_ID, then the hostname.
func GetID() string {
	if id := env.First("DYNO", "WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
