package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# sipauth Configuration File
#
# Environment variables override any value here: SIPAUTH_<SECTION>_<KEY>,
# e.g. SIPAUTH_LOGGING_LEVEL=DEBUG or SIPAUTH_AUTH_REALM=ims.example.com.
# The API secret is best supplied through SIPAUTH_API_SECRET.
#
# A lab setup without an HSS can serve static subscribers:
#
#   hss:
#     type: static
#     subscribers:
#       - impi: alice@ims.example.com
#         password: secret
#         qop: auth
#       - impi: bob@ims.example.com
#         aka:
#           challenge: <base64 RAND||AUTN>
#           response: <hex XRES>
#           cryptkey: <hex CK>
#           integritykey: <hex IK>
#
`

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	cfg := GetDefaultConfig()
	secret, err := GenerateSecret()
	if err != nil {
		return err
	}
	cfg.API.JWT.Secret = secret
	return WriteInitialConfig(cfg, path, force)
}

// WriteInitialConfig writes cfg to path preceded by the explanatory header.
func WriteInitialConfig(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), body...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateSecret returns 32 random bytes hex encoded, suitable as the API
// signing secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
