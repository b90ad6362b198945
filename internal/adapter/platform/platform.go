package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"pollguard/internal/domain"
)

const disabled = "none"

// Platform resolves filesystem paths and secrets from flags, environment and
// the user's home directory.
type Platform struct {
	homeDir string
}

// New creates a Platform rooted at the current user's home directory.
func New() (*Platform, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Platform{homeDir: home}, nil
}

// ResolveConfigPath returns the config file, checking flag, env, then
// ~/.config/pollguard/config.yaml.
func (p *Platform) ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("POLLGUARD_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(p.homeDir, ".config", "pollguard", "config.yaml")
}

// ResolveEvidenceLog returns the evidence file, checking flag, config, then
// ~/.local/state/pollguard/evidence.jsonl. "none" disables the file and
// yields "".
func (p *Platform) ResolveEvidenceLog(flagValue, configValue string) string {
	for _, v := range []string{flagValue, configValue} {
		if v == disabled {
			return ""
		}
		if v != "" {
			return v
		}
	}
	return filepath.Join(p.homeDir, ".local", "state", "pollguard", "evidence.jsonl")
}

// ResolveToken reads the bot token from the variable named envName, or from
// the file named by envName_FILE (systemd credentials, docker secrets).
func (p *Platform) ResolveToken(envName string) (string, error) {
	if v := trimSpace([]byte(os.Getenv(envName))); v != "" {
		return v, nil
	}
	if path := os.Getenv(envName + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s_FILE: %w", envName, err)
		}
		if s := trimSpace(data); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: set %s or %s_FILE", domain.ErrTokenMissing, envName, envName)
}

func trimSpace(b []byte) string {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\n' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\n' || b[end-1] == '\r') {
		end--
	}
	return string(b[start:end])
}
