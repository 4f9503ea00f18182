package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
)

// parseConf turns repeated key=value flags into a map.
func parseConf(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("invalid assignment %q", pair),
				Suggestion: "Use key=value",
			}
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// resolveAuthor lets a flag override the configured author.
func resolveAuthor(cfg *config.Config, flagValue string) (string, error) {
	if flagValue != "" {
		cfg.Def().Author = flagValue
	}
	return cfg.RequireAuthor()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
