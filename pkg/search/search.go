// Package search provisions the search tools given to the domain responder.
//
// Three backends exist: an Elasticsearch MCP server subprocess (the default),
// a local bleve index loaded from a JSON file, and none.
package search

import (
	"context"
	"fmt"

	"backoffice/pkg/config"
	"backoffice/pkg/logx"
	"backoffice/pkg/tools"
)

// Toolset is a provisioned tool registry and the resources behind it.
type Toolset struct {
	Registry *tools.Registry
	Backend  string
	closers  []func() error
}

func emptyToolset(backend string) *Toolset {
	reg, _ := tools.NewRegistry()
	return &Toolset{Registry: reg, Backend: backend}
}

// Close releases the backend (stops the MCP subprocess, closes the index).
func (t *Toolset) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	t.closers = nil
	return first
}

// Provision builds the toolset for cfg.Backend. MCP failures degrade to an empty
// toolset; local index failures are returned because they mean bad configuration.
func Provision(ctx context.Context, cfg *config.SearchConfig, logger *logx.Logger) (*Toolset, error) {
	if logger == nil {
		logger = logx.NewLogger("search")
	}

	switch cfg.Backend {
	case config.SearchBackendNone:
		logger.Info("Search backend disabled")
		return emptyToolset(cfg.Backend), nil
	case config.SearchBackendLocal:
		return provisionLocal(cfg, logger)
	case config.SearchBackendMCP, "":
		return ProvisionMCP(ctx, &cfg.MCP, logger), nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
}

func provisionLocal(cfg *config.SearchConfig, logger *logx.Logger) (*Toolset, error) {
	docs, err := LoadDocuments(cfg.Local.Documents)
	if err != nil {
		return nil, err
	}
	idx, err := NewLocalIndex(cfg.Index, docs)
	if err != nil {
		return nil, err
	}
	reg, err := tools.NewRegistry(NewTool(idx, cfg.PayloadParam))
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	logger.Info("Loaded %d documents into local index %s", len(docs), cfg.Index)
	return &Toolset{Registry: reg, Backend: config.SearchBackendLocal, closers: []func() error{idx.Close}}, nil
}
