package search

import (
	"context"

	"backoffice/pkg/config"
	"backoffice/pkg/logx"
	"backoffice/pkg/mcp"
	"backoffice/pkg/tools"
)

// ProvisionMCP starts the MCP server and lists its tools, waiting at most
// cfg.ConnectTimeout. On any failure it logs a warning and returns an empty toolset.
func ProvisionMCP(ctx context.Context, cfg *config.MCPConfig, logger *logx.Logger) *Toolset {
	var env []string
	for _, name := range cfg.EnvSecrets {
		value, err := config.GetSecret(name)
		if err != nil {
			logger.Warn("MCP server secret %s is not set", name)
			continue
		}
		env = append(env, name+"="+value)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client, err := mcp.Start(ctx, &mcp.Options{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     env,
		Logger:  logger.WithComponent("mcp"),
	})
	if err != nil {
		logger.Warn("Search tools unavailable, continuing without them: %v", err)
		return emptyToolset(config.SearchBackendMCP)
	}

	remote, err := client.Tools(ctx)
	if err != nil {
		logger.Warn("Listing MCP tools failed, continuing without them: %v", err)
		_ = client.Close()
		return emptyToolset(config.SearchBackendMCP)
	}

	reg, err := tools.NewRegistry(remote...)
	if err != nil {
		logger.Warn("MCP server returned unusable tools, continuing without them: %v", err)
		_ = client.Close()
		return emptyToolset(config.SearchBackendMCP)
	}

	logger.Info("Provisioned %d MCP tools", reg.Len())
	return &Toolset{Registry: reg, Backend: config.SearchBackendMCP, closers: []func() error{client.Close}}
}
