// Package permission implements the tool-call permission rule engine: a
// profile of ordered allow/deny patterns plus per-tool categories, scanned
// in a fixed decision order to reach an allow/deny verdict for one
// "ToolName(argument...)" call string.
package permission

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/extractumio/agentum/internal/apperr"
)

// Profile is the permission profile document loaded from permissions.yaml.
type Profile struct {
	Enabled           []string `yaml:"enabled"`
	Disabled          []string `yaml:"disabled"`
	PermissionChecked []string `yaml:"permission_checked"`
	PreApproved       []string `yaml:"pre_approved"`
	Allow             []string `yaml:"allow"`
	Deny              []string `yaml:"deny"`
}

// LoadProfile reads and parses a permission profile document from path.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Filesystem("read permission profile", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, apperr.Validation("parse permission profile: " + err.Error())
	}
	return &p, nil
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
