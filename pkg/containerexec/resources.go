package containerexec

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ResourceLimits is a parsed, validated form of the operator-supplied
// memory/cpu caps for the Docker sandbox backend.
type ResourceLimits struct {
	MemoryBytes int64
	CPUMillis   int64
}

// ParseResourceLimits validates memLimit/cpuLimit (Kubernetes-style
// quantity strings, e.g. "512Mi" and "500m") before a docker-backed tool
// server ever starts, so a typo in config.json fails the launch with a
// clear message instead of being silently ignored by docker compose.
// Either string may be empty, meaning "no limit configured".
func ParseResourceLimits(memLimit, cpuLimit string) (ResourceLimits, error) {
	var limits ResourceLimits

	if memLimit != "" {
		qty, err := resource.ParseQuantity(memLimit)
		if err != nil {
			return ResourceLimits{}, fmt.Errorf("sandbox.memory_limit %q: %w", memLimit, err)
		}
		limits.MemoryBytes = qty.Value()
	}

	if cpuLimit != "" {
		qty, err := resource.ParseQuantity(cpuLimit)
		if err != nil {
			return ResourceLimits{}, fmt.Errorf("sandbox.cpu_limit %q: %w", cpuLimit, err)
		}
		limits.CPUMillis = qty.MilliValue()
	}

	return limits, nil
}
