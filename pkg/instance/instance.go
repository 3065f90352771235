package instance

import "github.com/shopflow/shopflow-backend/pkg/env"

// ID identifies the running process in logs. Platform-assigned names win
// over the explicit WORKER_ID; kind+"-local" is used when neither is set.
func ID(kind string) string {
	if id := env.First("DYNO", "K_REVISION", "WORKER_ID", "HOSTNAME"); id != "" {
		return id
	}
	if kind == "" {
		kind = "shopflow"
	}
	return kind + "-local"
}
