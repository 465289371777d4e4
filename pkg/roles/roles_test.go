package roles

import "testing"

func TestLookupKnownRoles(t *testing.T) {
	for _, r := range All() {
		if _, ok := Lookup(r); !ok {
			t.Errorf("role %q should be registered", r)
		}
	}
}

func TestIsValidRejectsUnknown(t *testing.T) {
	if IsValid(Role("not-a-role")) {
		t.Fatal("expected unknown role to be invalid")
	}
}

func TestSandboxSafeRoles(t *testing.T) {
	for _, r := range []Role{ReadPath, WritePath, DeletePath} {
		if !SandboxSafe[r] {
			t.Errorf("expected %q to be sandbox-safe", r)
		}
	}
	for _, r := range []Role{WriteHistory, DeleteHistory} {
		if SandboxSafe[r] {
			t.Errorf("expected %q to not be sandbox-safe", r)
		}
	}
}

func TestIsPathCategory(t *testing.T) {
	if !IsPathCategory(ReadPath) {
		t.Error("read-path should be path category")
	}
	if IsPathCategory(FetchURL) {
		t.Error("fetch-url should not be path category")
	}
	if !IsURLCategory(GitRemoteURL) {
		t.Error("git-remote-url should be url category")
	}
}

func TestCompletenessMap(t *testing.T) {
	m := CompletenessMap()
	if AllHandled(m) {
		t.Fatal("fresh completeness map should not be all-handled")
	}
	for r := range m {
		m[r] = true
	}
	if !AllHandled(m) {
		t.Fatal("fully marked completeness map should be all-handled")
	}
}

func TestSetOverridesRegisteredEntry(t *testing.T) {
	called := false
	Set(ReadPath, func(v string) (string, error) {
		called = true
		return v, nil
	}, nil, nil)
	entry, ok := Lookup(ReadPath)
	if !ok {
		t.Fatal("expected read-path to be registered")
	}
	if _, err := entry.Normalize("/tmp/x"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected overridden Normalize to be invoked")
	}
}
