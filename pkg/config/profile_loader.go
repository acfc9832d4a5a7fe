package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is a named per-deployment policy bundle layered on
// top of the environment configuration.
type DeploymentProfile struct {
	Name     string         `yaml:"name" json:"name"`
	Code     string         `yaml:"code" json:"code"`
	Limits   LimitsConfig   `yaml:"limits" json:"limits"`
	Parties  PartiesConfig  `yaml:"parties" json:"parties"`
	Archival ArchivalConfig `yaml:"archival" json:"archival"`
}

// LimitsConfig bounds what the deployment accepts.
type LimitsConfig struct {
	// MaxAmount caps accepted amounts as a decimal string; empty means
	// the engine maximum.
	MaxAmount string `yaml:"max_amount,omitempty" json:"max_amount,omitempty"`
	// MaxConditions caps conditions per escrow; zero means unlimited.
	MaxConditions int `yaml:"max_conditions,omitempty" json:"max_conditions,omitempty"`
	// MinEscrowTTL is the minimum seconds between creation and expiry.
	MinEscrowTTL uint64 `yaml:"min_escrow_ttl,omitempty" json:"min_escrow_ttl,omitempty"`
}

// PartiesConfig restricts who may act in this deployment.
type PartiesConfig struct {
	// Mode is "open" (any verified party) or "allowlist".
	Mode      string   `yaml:"mode" json:"mode"`
	Allowlist []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
}

// ArchivalConfig controls audit snapshot export.
type ArchivalConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Backend  string `yaml:"backend,omitempty" json:"backend,omitempty"` // "dir" | "s3"
	S3Bucket string `yaml:"s3_bucket,omitempty" json:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty" json:"s3_prefix,omitempty"`
}

// LoadProfile loads a deployment profile YAML by code. It searches the
// profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml file from the profiles
// directory, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// profile_eu.yaml -> eu
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// PermitsParty reports whether the profile's party policy admits the
// given party.
func (p *DeploymentProfile) PermitsParty(party string) bool {
	if p.Parties.Mode != "allowlist" {
		return true
	}
	for _, allowed := range p.Parties.Allowlist {
		if allowed == party {
			return true
		}
	}
	return false
}
