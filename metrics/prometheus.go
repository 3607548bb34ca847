// Package metrics defines the Prometheus-compatible metric namespaces
// this archive publishes, following the docker/go-metrics conventions
// used throughout this codebase's ambient stack.
package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace all of this archive's metrics are
	// published under.
	NamespacePrefix = "libreary"
)

var (
	// AdapterNamespace covers operations performed against individual
	// storage backends (Store, Retrieve, Delete, ActualChecksum).
	AdapterNamespace = metrics.NewNamespace(NamespacePrefix, "adapter", nil)

	// ManagerNamespace covers replication and repair operations
	// performed by the adapter manager across all configured adapters.
	ManagerNamespace = metrics.NewNamespace(NamespacePrefix, "manager", nil)
)

func init() {
	metrics.Register(AdapterNamespace)
	metrics.Register(ManagerNamespace)
}
