package instance

import (
	"os"
	"strings"
)

const defaultID = "local"

// GetID identifies this process in logs. DYNO wins on Heroku-style hosts,
// then STOREFRONT_INSTANCE_ID, then the hostname.
func GetID() string {
	for _, key := range []string{"DYNO", "STOREFRONT_INSTANCE_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
