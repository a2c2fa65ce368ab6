package game

import (
	"os"
	"path/filepath"
	"strings"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Endpoints come from the environment so a dev server and a hosted one can
// coexist without rebuilding.
var (
	APIBase   = getenv("LUMINA_API_BASE", "http://127.0.0.1:8080")
	ServerURL = getenv("LUMINA_WS_URL", "ws://127.0.0.1:8080/ws")
)

// ConfigDir = OS config dir / Lumina. Holds the cached auth token so the
// client survives restarts without re-login.
func ConfigDir() string {
	root, _ := os.UserConfigDir()
	if root == "" {
		home, _ := os.UserHomeDir()
		root = filepath.Join(home, ".config")
	}
	dir := filepath.Join(root, "Lumina")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func ConfigPath(name string) string {
	return filepath.Join(ConfigDir(), name)
}

// LoadToken returns the cached bearer token, preferring LUMINA_TOKEN.
func LoadToken() string {
	if t := strings.TrimSpace(os.Getenv("LUMINA_TOKEN")); t != "" {
		return t
	}
	b, _ := os.ReadFile(ConfigPath("token.json"))
	return strings.TrimSpace(string(b))
}

func SaveToken(tok string) error {
	return os.WriteFile(ConfigPath("token.json"), []byte(strings.TrimSpace(tok)), 0o600)
}
