package agent

import (
	"fmt"

	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/llm"
	"github.com/ksofianos/cadre/internal/memory"
	"github.com/ksofianos/cadre/internal/tools"
)

// FromDefinition assembles an agent from its config declaration, resolving
// tool names and applying the service-wide defaults.
func FromDefinition(name string, def config.AgentDefinition, defaults config.DefaultsConfig, provider llm.Provider, mem memory.Backend) (*Agent, error) {
	cfg := Config{
		Name:          name,
		Role:          def.Role,
		Goal:          def.Goal,
		Backstory:     def.Backstory,
		Model:         def.Model,
		Temperature:   def.Temperature,
		MaxTokens:     def.MaxTokens,
		MaxIterations: def.MaxIterations,
		MemoryEnabled: defaults.MemoryEnabled,
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if def.Memory != nil {
		cfg.MemoryEnabled = *def.Memory
	}

	toolset := make([]tools.Tool, 0, len(def.Tools))
	for _, toolName := range def.Tools {
		t, err := tools.ByName(toolName)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		toolset = append(toolset, t)
	}

	return New(cfg, provider, mem, toolset), nil
}
