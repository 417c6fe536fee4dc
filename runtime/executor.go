package runtime

import (
	"fmt"

	"github.com/wptagent/agent/executor"
)

// ResolveDriverPath turns the configured driver bundle path into the
// executable path DriveOptions.DriverPath expects, extracting it via
// executor.EnsureBundle if it names an archive. Call once at startup;
// DriverProcess launches this same path once per task afterward.
//
// The resulting subprocess is this agent's only realization of
// executor.BrowserDriver: DriverProcess and IngestionEngine drive it over
// the framed devtools-event protocol (package ipc) rather than through
// discrete Go method calls, because the protocol is a long-lived streaming
// exchange, not a request/response API.
func ResolveDriverPath(configuredPath string) (string, error) {
	path, err := executor.EnsureBundle(configuredPath)
	if err != nil {
		return "", fmt.Errorf("runtime: resolve browser driver: %w", err)
	}
	return path, nil
}
