package instance

import "github.com/lazydrop/lazydrop-billing/pkg/env"

// GetID returns the worker instance identifier used in logs and lock owners.
// WORKER_ID wins over the container HOSTNAME.
func GetID() string {
	return env.First("worker-0", "WORKER_ID", "HOSTNAME")
}
