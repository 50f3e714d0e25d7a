package cli

import (
	"fmt"

	"github.com/agentpack-dev/agentpack/internal/config"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/namespace"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// resolveRoot turns the shared --scope/--target flags into a concrete
// installation root.
func resolveRoot(scopeFlag, targetFlag string) (string, error) {
	if scopeFlag == "" {
		scopeFlag = config.Get(config.KeyDefaultScope)
	}
	scope, err := pathscope.ParseScope(scopeFlag)
	if err != nil {
		return "", errdefs.Wrap(errdefs.EUsage, err.Error(), err)
	}
	root, err := pathscope.Resolve(scope, targetFlag)
	if err != nil {
		return "", fmt.Errorf("resolving installation root: %w", err)
	}
	return root, nil
}

// ownershipPatterns returns the namespace rules shared by every command.
// There is exactly one definition; install does not need it, uninstall
// and check must agree on it.
func ownershipPatterns() namespace.PatternSet {
	return namespace.Default()
}
