package instance

import "os"

// GetID identifies this replica in logs. It prefers an explicit
// HUDDLE_INSTANCE_ID, then the platform dyno name, then the hostname.
func GetID() string {
	if id := os.Getenv("HUDDLE_INSTANCE_ID"); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
