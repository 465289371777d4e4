package pathnorm

import "github.com/ironcurtain/ironcurtain/pkg/roles"

// Bootstrap wires concrete path/URL normalization into the role registry.
// Call once at process startup (the mediator and the compiler both need
// this before constructing a policy engine). sandboxDir is used for
// resolving relative paths in PrepareForPolicy; it may be empty if no
// sandbox is configured for the session.
func Bootstrap(sandboxDir string) {
	pathPrepare := func(normalized string) (string, error) {
		return PolicyPath(normalized, sandboxDir)
	}
	pathNormalize := func(raw string) (string, error) {
		return TransportPath(raw)
	}

	for _, r := range []roles.Role{roles.ReadPath, roles.WritePath, roles.DeletePath, roles.WriteHistory, roles.DeleteHistory} {
		roles.Set(r, pathNormalize, pathPrepare, nil)
	}

	urlNormalize := func(raw string) (string, error) { return raw, nil }
	urlPrepare := func(normalized string) (string, error) { return ExtractDomain(normalized) }
	roles.Set(roles.FetchURL, urlNormalize, urlPrepare, nil)

	roles.Set(roles.GitRemoteURL, urlNormalize, urlPrepare, func(value string, siblings map[string]any) (string, error) {
		repoDir, _ := siblings["path"].(string)
		return ResolveNamedRemote(value, repoDir), nil
	})
}
