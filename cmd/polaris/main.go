// Polaris is a federated inference gateway.
//
// It exposes an OpenAI-compatible API and routes each request across a
// fleet of inference clusters, providing:
//   - Logical model names federated over multiple physical endpoints
//   - Health-scored failover with per-target cooldown
//   - Streaming proxying with cancellation propagation
//   - Asynchronous batch job submission and tracking
//   - Per-request usage accounting
//
// Usage:
//
//	# Start the gateway with default configuration
//	polaris run
//
//	# Start with a custom configuration file
//	polaris run --config /etc/polaris/config.yaml
//
//	# Validate a configuration file without starting
//	polaris validate
//
//	# Drain historical request logs into usage metrics
//	polaris backfill
//
//	# Show version information
//	polaris version
package main

import (
	// Adaptor variants register themselves with the registry at init.
	_ "polaris-hq/polaris/pkg/adaptors/fabric"
	_ "polaris-hq/polaris/pkg/adaptors/openaiapi"
)

func main() {
	Execute()
}
