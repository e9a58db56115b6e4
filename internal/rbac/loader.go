package rbac

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadFile reads a YAML role table:
//
//	roles:
//	  KETUA_RT: [approve:documents, reject:documents]
//
// An empty path returns DefaultModel.
func LoadFile(path string) (*Model, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultModel(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML role table into a Model.
func Parse(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file tableFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("rbac: decode table: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("rbac: table defines no roles")
	}
	table := make(map[RoleID][]Capability, len(file.Roles))
	for rawRole, rawCaps := range file.Roles {
		role, ok := ParseRole(rawRole)
		if !ok {
			return nil, fmt.Errorf("rbac: unknown role %q", rawRole)
		}
		caps := make([]Capability, 0, len(rawCaps))
		for _, c := range rawCaps {
			caps = append(caps, Capability(strings.TrimSpace(c)))
		}
		table[role] = caps
	}
	return NewModel(table)
}
