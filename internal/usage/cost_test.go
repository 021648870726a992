package usage

import "testing"

func TestResolveModelCost_ExactMatch(t *testing.T) {
	cost := ResolveModelCost("openai", "gpt-4o-mini")
	if cost.Input != 0.15 || cost.Output != 0.60 {
		t.Errorf("cost = %+v, want gpt-4o-mini rates", cost)
	}
}

func TestResolveModelCost_PrefixMatchForVersionedName(t *testing.T) {
	cost := ResolveModelCost("openai", "gpt-4o-2024-11-20")
	if cost.Input != 2.50 {
		t.Errorf("expected gpt-4o prefix match, got %+v", cost)
	}
}

func TestResolveModelCost_LocalProviderIsFree(t *testing.T) {
	cost := ResolveModelCost("ollama", "llama3.1:70b")
	if cost.Input != 0 || cost.Output != 0 {
		t.Errorf("expected zero cost for a local provider, got %+v", cost)
	}
}

func TestResolveModelCost_UnknownHostedModelUsesConservativeFallback(t *testing.T) {
	cost := ResolveModelCost("openai", "some-future-model-nobody-has-heard-of")
	if cost != unknownModelFallback {
		t.Errorf("expected conservative fallback rate, got %+v", cost)
	}
}
