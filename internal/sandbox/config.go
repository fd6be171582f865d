package sandbox

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/config"
)

// LoadConfig reads security.yaml at path into a config.SandboxConfig. The
// struct's yaml tags are shared with the mapstructure-driven defaults so a
// file on disk and an environment-derived default agree on shape.
func LoadConfig(path string) (*config.SandboxConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Filesystem("read sandbox config", err)
	}
	var cfg config.SandboxConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, apperr.Validation("parse sandbox config: " + err.Error())
	}
	return &cfg, nil
}
