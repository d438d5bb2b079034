package config

// AuthStrategy names how the agent session reaches and authenticates
// against its model backend.
type AuthStrategy string

const (
	// StrategyAnthropicAPIKey uses the Anthropic Messages API.
	StrategyAnthropicAPIKey AuthStrategy = "anthropic-api-key"

	// StrategyOpenAIAPIKey uses the OpenAI Chat Completions API.
	StrategyOpenAIAPIKey AuthStrategy = "openai-api-key"

	// StrategyBearerToken uses an OpenAI-compatible server at
	// agent.base_url with a bearer token.
	StrategyBearerToken AuthStrategy = "bearer-token"

	// StrategyNone uses an OpenAI-compatible server at agent.base_url
	// without credentials.
	StrategyNone AuthStrategy = "none"
)

// Environment variables inspected by ResolveAuthStrategy, in priority order.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvBearerToken     = "WEICHE_BEARER_TOKEN"
)

// ResolveAuthStrategy picks the strategy from the presence of credential
// environment variables. lookup has the signature of os.LookupEnv; a
// variable that is set but empty counts as absent.
func ResolveAuthStrategy(lookup func(string) (string, bool)) AuthStrategy {
	present := func(name string) bool {
		v, ok := lookup(name)
		return ok && v != ""
	}
	switch {
	case present(EnvAnthropicAPIKey):
		return StrategyAnthropicAPIKey
	case present(EnvOpenAIAPIKey):
		return StrategyOpenAIAPIKey
	case present(EnvBearerToken):
		return StrategyBearerToken
	default:
		return StrategyNone
	}
}

// credentialEnv returns the environment variable holding the strategy's
// credential, or "" for StrategyNone.
func (s AuthStrategy) credentialEnv() string {
	switch s {
	case StrategyAnthropicAPIKey:
		return EnvAnthropicAPIKey
	case StrategyOpenAIAPIKey:
		return EnvOpenAIAPIKey
	case StrategyBearerToken:
		return EnvBearerToken
	default:
		return ""
	}
}

// DefaultModel returns the model used when agent.model is not configured.
// Strategies talking to an arbitrary OpenAI-compatible server have none.
func (s AuthStrategy) DefaultModel() string {
	switch s {
	case StrategyAnthropicAPIKey:
		return "claude-sonnet-4-20250514"
	case StrategyOpenAIAPIKey:
		return "gpt-4o"
	default:
		return ""
	}
}

// Valid reports whether s is one of the known strategies.
func (s AuthStrategy) Valid() bool {
	switch s {
	case StrategyAnthropicAPIKey, StrategyOpenAIAPIKey, StrategyBearerToken, StrategyNone:
		return true
	}
	return false
}
