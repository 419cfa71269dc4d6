package tools

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giantswarm/mcp-hive/internal/server"
)

// CheckMutatingOperation returns a not_permitted error when the server runs
// in non-destructive mode without dry-run, and nil otherwise.
func CheckMutatingOperation(sc *server.ServerContext, operation string) error {
	config := sc.Config()
	if !config.NonDestructiveMode || config.DryRun {
		return nil
	}
	if operation == "" {
		operation = "mutating"
	}
	return Errorf(KindNotPermitted,
		"%s operations are not allowed in non-destructive mode (use --dry-run to validate without applying)",
		cases.Title(language.English).String(operation),
	)
}
