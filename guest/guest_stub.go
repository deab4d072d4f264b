//go:build !wasip1

// Package guest is the in-guest half of the channel ABI for programs
// compiled to wasip1 and embedded by the host package. This stub keeps the
// package buildable natively; every entry point fails.
package guest

import (
	"fmt"

	"github.com/Goooler/zipline/endpoint"
)

// Install is only available in wasip1 builds. Native code talks to an
// endpoint directly, or through endpoint.Pipe.
func Install(e *endpoint.Endpoint) error {
	return fmt.Errorf("guest: only available in wasip1 builds")
}
