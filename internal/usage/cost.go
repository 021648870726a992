package usage

import "strings"

// DefaultModelCosts holds per-million-token pricing for known models,
// keyed by provider then model ID. Prices are in USD.
var DefaultModelCosts = map[string]map[string]Cost{
	"openai": {
		"gpt-4o":      {Input: 2.50, Output: 10.0, CacheRead: 1.25},
		"gpt-4o-mini": {Input: 0.15, Output: 0.60, CacheRead: 0.075},
		"gpt-4-turbo": {Input: 10.0, Output: 30.0},
		"gpt-4":       {Input: 30.0, Output: 60.0},
		"o1-preview":  {Input: 15.0, Output: 60.0},
		"o1-mini":     {Input: 3.0, Output: 12.0, CacheRead: 1.50},
	},
	"copilot": {
		"gpt-4o":            {Input: 2.50, Output: 10.0},
		"o1-preview":        {Input: 15.0, Output: 60.0},
		"claude-3.5-sonnet": {Input: 3.0, Output: 15.0},
	},
	"gemini": {
		"gemini-1.5-pro":   {Input: 1.25, Output: 5.0},
		"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
		"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
	},
	"groq": {
		"llama-3.1-70b-versatile": {Input: 0.59, Output: 0.79},
		"llama-3.1-8b-instant":    {Input: 0.05, Output: 0.08},
	},
}

// unknownModelFallback is the conservative rate assumed for a model
// (or provider) not present in DefaultModelCosts, per §4.8 — rather than
// silently reporting zero cost for something we can't price, a
// mid-tier-hosted-model rate is assumed so totals stay directionally
// useful. Local providers (ollama, llama-server) use a zero rate instead,
// see ResolveModelCost.
var unknownModelFallback = Cost{Input: 3.0, Output: 15.0}

// localProviders incur no per-token cost — they run on the user's own
// hardware.
var localProviders = map[string]bool{
	"ollama":       true,
	"llama-server": true,
}

// ResolveModelCost looks up pricing for provider/model. An exact match in
// DefaultModelCosts wins; failing that, a prefix match against a known
// model ID within the same provider (for dated/versioned model names),
// the longest matching ID winning;
// failing that, a zero rate for a known-local provider, or
// unknownModelFallback as a conservative default so an unrecognized
// model still contributes a (likely overestimated) nonzero cost rather
// than vanishing from totals.
func ResolveModelCost(provider, model string) Cost {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)

	if providerCosts, ok := DefaultModelCosts[provider]; ok {
		if cost, ok := providerCosts[model]; ok {
			return cost
		}
		best, bestLen := Cost{}, -1
		for id, cost := range providerCosts {
			if (strings.HasPrefix(model, id) || strings.HasPrefix(id, model)) && len(id) > bestLen {
				best, bestLen = cost, len(id)
			}
		}
		if bestLen >= 0 {
			return best
		}
	}

	if localProviders[provider] {
		return Cost{}
	}

	return unknownModelFallback
}
