package mediator

import (
	"fmt"

	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

// splitArgs builds the transport view of a call's arguments: what the real
// tool server receives (so its own root-containment logic stays accurate
// against whatever form the agent supplied). The policy view is not built
// here; the engine derives it from annotation + raw arguments on every
// Evaluate.
func splitArgs(annotation policy.ToolAnnotation, arguments map[string]any) (transport map[string]any, err error) {
	transport = make(map[string]any, len(arguments))
	for name, value := range arguments {
		role, hasRole := annotation.Args[name]
		if !hasRole || role == roles.None {
			transport[name] = value
			continue
		}

		entry, ok := roles.Lookup(role)
		if !ok {
			return nil, fmt.Errorf("argument %q declares unknown role %q", name, role)
		}

		raw := stringifyValue(value)
		normalized := raw
		if entry.Normalize != nil {
			normalized, err = entry.Normalize(raw)
			if err != nil {
				return nil, fmt.Errorf("argument %q: normalizing for transport: %w", name, err)
			}
		}
		transport[name] = normalized
	}
	return transport, nil
}

func stringifyValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
