package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WEICHE_CONFIG env, ./config.yaml, /etc/weiche/config.yaml)
//  3. WEICHE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Agent auth strategy resolution
//  6. Validation
func Load(configPath string) (*Config, error) {
	return load(configPath, os.LookupEnv)
}

func load(configPath string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath, lookup)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	resolveAgentCredentials(&cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. WEICHE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/weiche/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string, lookup func(string) (string, bool)) string {
	if configPath != "" {
		return configPath
	}

	if envPath, _ := lookup("WEICHE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/weiche/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps WEICHE_* environment variables to config fields.
// Malformed numbers, durations and JSON values are reported rather than
// silently ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) string {
		v, _ := lookup(name)
		return v
	}

	if v := get("WEICHE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEICHE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := get("WEICHE_STRATEGY"); v != "" {
		cfg.Agent.Strategy = AuthStrategy(v)
	}
	if v := get("WEICHE_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := get("WEICHE_BASE_URL"); v != "" {
		cfg.Agent.BaseURL = v
	}
	if v := get("WEICHE_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEICHE_MAX_STEPS: %w", err)
		}
		cfg.Engine.MaxSteps = n
	}
	if v := get("WEICHE_TURN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WEICHE_TURN_TIMEOUT: %w", err)
		}
		cfg.Engine.TurnTimeout = d
	}
	if v := get("WEICHE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := get("WEICHE_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := get("WEICHE_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := get("WEICHE_DEBUG"); v != "" {
		cfg.Observability.Logging.Debug = v
	}
	if v := get("WEICHE_WEB_SEARCH_URL"); v != "" {
		cfg.Tools.WebSearch.URL = v
	}

	// WEICHE_API_KEYS: JSON array of API key configs.
	if v := get("WEICHE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}

	// WEICHE_MCP_SERVERS: JSON array of MCP server configs.
	if v := get("WEICHE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			return err
		}
		cfg.MCP.Servers = servers
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// agent.api_key_file -> agent.api_key
	if cfg.Agent.APIKeyFile != "" && cfg.Agent.APIKey == "" {
		val, err := readSecretFile(cfg.Agent.APIKeyFile)
		if err != nil {
			return fmt.Errorf("agent.api_key_file: %w", err)
		}
		cfg.Agent.APIKey = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	// mcp.servers[*].auth.client_id_file -> mcp.servers[*].auth.client_id
	// mcp.servers[*].auth.client_secret_file -> mcp.servers[*].auth.client_secret
	for i := range cfg.MCP.Servers {
		a := &cfg.MCP.Servers[i].Auth
		if a.ClientIDFile != "" && a.ClientID == "" {
			val, err := readSecretFile(a.ClientIDFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_id_file: %w", i, err)
			}
			a.ClientID = val
		}
		if a.ClientSecretFile != "" && a.ClientSecret == "" {
			val, err := readSecretFile(a.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			a.ClientSecret = val
		}
	}

	return nil
}

// resolveAgentCredentials fills in the agent strategy from the environment
// when it is not configured, picks the strategy's default model, and takes
// the API key from the strategy's credential variable when none was given
// explicitly.
func resolveAgentCredentials(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Agent.Strategy == "" {
		cfg.Agent.Strategy = ResolveAuthStrategy(lookup)
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = cfg.Agent.Strategy.DefaultModel()
	}
	if cfg.Agent.APIKey != "" {
		return
	}
	if env := cfg.Agent.Strategy.credentialEnv(); env != "" {
		if v, ok := lookup(env); ok {
			cfg.Agent.APIKey = strings.TrimSpace(v)
		}
	}
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
