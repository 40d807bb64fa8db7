package session

import "testing"

func TestResolveFlagBeatsEnv(t *testing.T) {
	t.Setenv(EnvSessionVar, "from-env")
	if got := Resolve("from-flag"); got != "from-flag" {
		t.Errorf("Resolve = %q, want from-flag", got)
	}
}

func TestResolveEnvBeatsConfig(t *testing.T) {
	t.Setenv(EnvSessionVar, "from-env")
	if got := Resolve(""); got != "from-env" {
		t.Errorf("Resolve = %q, want from-env", got)
	}
}
