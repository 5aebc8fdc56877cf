package patterns

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads an optional patterns.toml override file at path and merges it
// over Default(): any field left zero-valued in the file keeps the
// built-in default, following the same "layer the file over sane
// defaults" shape gastown uses for hooks/registry.toml. A missing file is
// not an error — callers get Default() unchanged.
func Load(path string) (*Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pattern overrides: %w", err)
	}

	var override Table
	if err := toml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing pattern overrides: %w", err)
	}

	mergeNonEmpty(&t.PermissionPatterns, override.PermissionPatterns)
	mergeNonEmpty(&t.ActiveIndicators, override.ActiveIndicators)
	mergeNonEmpty(&t.ExecutionIndicators, override.ExecutionIndicators)
	mergeNonEmpty(&t.WaitingPatterns, override.WaitingPatterns)
	mergeNonEmpty(&t.PromptChars, override.PromptChars)
	mergeNonEmpty(&t.LinePrefixes, override.LinePrefixes)
	mergeNonEmpty(&t.StatusBarPrefixes, override.StatusBarPrefixes)
	mergeNonEmpty(&t.SpawnFailurePatterns, override.SpawnFailurePatterns)
	mergeNonEmpty(&t.ApprovalPatterns, override.ApprovalPatterns)
	mergeNonEmpty(&t.ErrorPatterns, override.ErrorPatterns)
	if override.CommandMenuPattern != "" {
		t.CommandMenuPattern = override.CommandMenuPattern
	}

	t.compile()
	return t, nil
}

func mergeNonEmpty(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
