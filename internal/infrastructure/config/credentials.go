package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// CredentialsFileEnv overrides the default credentials file location.
const CredentialsFileEnv = "PRIVVY_CREDENTIALS_FILE"

// Credentials holds the key=value pairs read from the Privvy credentials file.
// Recognized keys are api_url, email and password.
type Credentials map[string]string

// LoadCredentialsFile parses a credentials file. Blank lines and lines starting
// with '#' are ignored, as are lines without a key before the first '='.
func LoadCredentialsFile(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	creds := make(Credentials)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		creds[key] = value
	}

	return creds, scanner.Err()
}

// credentialsPath resolves the credentials file, defaulting to ~/.privvy/credentials
func credentialsPath() string {
	if path := os.Getenv(CredentialsFileEnv); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".privvy", "credentials")
}

// fillFrom copies credentials into the config. With override set, file values
// replace existing ones; otherwise only empty fields are filled.
func (p *PrivvyConfig) fillFrom(creds Credentials, override bool) {
	set := func(dst *string, key string) {
		val, ok := creds[key]
		if !ok {
			return
		}
		if override || *dst == "" {
			*dst = val
		}
	}
	set(&p.APIURL, "api_url")
	set(&p.Email, "email")
	set(&p.Password, "password")
}
