package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// NetworkDefinitions models configs/networks.yaml.
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition holds the defaults for one network tag.
type NetworkDefinition struct {
	Liteserver  string `yaml:"liteserver"`
	Key         string `yaml:"key"`
	Explorer    string `yaml:"explorer"`
	Description string `yaml:"description"`
}

// LoadNetworkDefinitions parses the YAML file. An empty path yields no definitions.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to read network definitions",
			xerrors.WithMetadata("path", path))
	}

	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to parse network definitions",
			xerrors.WithMetadata("path", path))
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}

// Lookup finds a definition by case-insensitive network tag.
func (d NetworkDefinitions) Lookup(network string) (NetworkDefinition, bool) {
	def, ok := d.Networks[strings.ToLower(strings.TrimSpace(network))]
	return def, ok
}

// Explorers maps every network tag to its explorer base URL.
func (d NetworkDefinitions) Explorers() map[string]string {
	out := make(map[string]string, len(d.Networks))
	for name, def := range d.Networks {
		if def.Explorer != "" {
			out[name] = strings.TrimRight(def.Explorer, "/")
		}
	}
	return out
}

// Resolve returns a copy of the wallet configuration with secrets read from
// the environment and the endpoint and key filled from the network definition
// when left empty.
func (w WalletConfig) Resolve(defs NetworkDefinitions) WalletConfig {
	resolved := w
	resolved.RPCKey = w.ResolveRPCKey()
	resolved.Mnemonic = w.ResolveMnemonic()
	resolved.RPCEndpoint = strings.TrimSpace(w.RPCEndpoint)

	if def, ok := defs.Lookup(w.Network); ok {
		if resolved.RPCEndpoint == "" {
			resolved.RPCEndpoint = strings.TrimSpace(def.Liteserver)
		}
		if resolved.RPCKey == "" {
			resolved.RPCKey = strings.TrimSpace(def.Key)
		}
	}
	return resolved
}
