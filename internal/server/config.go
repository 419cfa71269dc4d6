package server

import (
	"fmt"
	"time"

	"github.com/giantswarm/mcp-hive/internal/hive"
)

// DefaultToolTimeout is the execution budget of a tool call.
const DefaultToolTimeout = 60 * time.Second

// Config is the server configuration seen by tool handlers.
type Config struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`
	Transport  string `json:"transport"`

	// HiveNamespace holds the ClusterClaims. OwnerLabel, when set, is read
	// for the owner of pool-less ClusterDeployments.
	HiveNamespace string `json:"hiveNamespace"`
	OwnerLabel    string `json:"ownerLabel,omitempty"`

	// Mutating tools run only when NonDestructiveMode is off or DryRun is on.
	NonDestructiveMode bool `json:"nonDestructiveMode"`
	DryRun             bool `json:"dryRun"`

	ToolTimeout time.Duration `json:"toolTimeout"`
}

// NewDefaultConfig returns the configuration of a server started without
// flags: non-destructive, 60s per tool call, claims in the rhoai namespace.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:         "mcp-hive",
		Version:            "dev",
		Transport:          "stdio",
		HiveNamespace:      hive.DefaultNamespace,
		NonDestructiveMode: true,
		ToolTimeout:        DefaultToolTimeout,
	}
}

// Validate reports settings no server can run with.
func (c *Config) Validate() error {
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidToolTimeout, c.ToolTimeout)
	}
	if c.HiveNamespace == "" {
		return ErrMissingNamespace
	}
	return nil
}
