package instance

import (
	"os"
	"strings"
)

// ID identifies the running process in logs and metrics. It prefers an
// explicit override, then the platform dyno name, then the hostname.
func ID() string {
	for _, key := range []string{"CHURNGUARD_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
