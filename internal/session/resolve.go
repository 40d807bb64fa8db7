package session

import (
	"os"

	"github.com/minhbui/trovia/internal/config"
)

const DefaultSessionName = "main"

// EnvSessionVar overrides the session for one shell without touching
// config.toml, for running a second daemon side by side.
const EnvSessionVar = "TROVIA_SESSION"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. $TROVIA_SESSION
// 3. config.toml default_session
// 4. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvSessionVar); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
