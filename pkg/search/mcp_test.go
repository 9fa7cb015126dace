package search

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/config"
	"backoffice/pkg/logx"
)

const fakeModeEnv = "BACKOFFICE_SEARCH_FAKE_MCP"

func TestMain(m *testing.M) {
	switch os.Getenv(fakeModeEnv) {
	case "serve":
		serveFakeMCP(os.Getenv("ES_URL"))
		os.Exit(0)
	case "silent":
		// Read until stdin closes, never answering.
		_, _ = bufio.NewReader(os.Stdin).ReadString(0)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// serveFakeMCP answers the handshake and lists one search tool whose description
// carries the ES_URL it was started with.
func serveFakeMCP(esURL string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if json.Unmarshal(line, &req) != nil || len(req.ID) == 0 {
			continue
		}
		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{"protocolVersion": "2024-11-05", "serverInfo": map[string]any{"name": "fake", "version": "1"}}
		case "tools/list":
			result = map[string]any{"tools": []map[string]any{{
				"name":        "search",
				"description": "search " + esURL,
				"inputSchema": map[string]any{"type": "object", "required": []string{"index", "queryBody"}},
			}}}
		case "tools/call":
			result = map[string]any{"content": []map[string]any{{"type": "text", "text": "Total results: 0"}}}
		}
		data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		_, _ = os.Stdout.Write(append(data, '\n'))
	}
}

func fakeMCPConfig() *config.MCPConfig {
	return &config.MCPConfig{
		Command:        os.Args[0],
		Args:           []string{"-test.run=^$"},
		EnvSecrets:     []string{"ES_URL"},
		ConnectTimeout: 5 * time.Second,
	}
}

func TestProvisionMCP(t *testing.T) {
	config.SetDecryptedSecrets(nil)
	t.Setenv(fakeModeEnv, "serve")
	t.Setenv("ES_URL", "https://es.test:9200")

	ts := ProvisionMCP(context.Background(), fakeMCPConfig(), logx.NewLogger("test"))
	t.Cleanup(func() { _ = ts.Close() })

	require.Equal(t, 1, ts.Registry.Len())
	tool, err := ts.Registry.Get("search")
	require.NoError(t, err)
	assert.Equal(t, "search https://es.test:9200", tool.Definition().Description)
	assert.Equal(t, []string{"index", "queryBody"}, tool.Definition().InputSchema.Required)

	out, err := tool.Exec(context.Background(), map[string]any{"index": "parking", "queryBody": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "Total results: 0", out.Content)

	require.NoError(t, ts.Close())
}

func TestProvisionMCPTimeoutFallsBackToEmpty(t *testing.T) {
	t.Setenv(fakeModeEnv, "silent")
	cfg := fakeMCPConfig()
	cfg.ConnectTimeout = 200 * time.Millisecond

	start := time.Now()
	ts := ProvisionMCP(context.Background(), cfg, logx.NewLogger("test"))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, ts.Registry.Len())
	assert.NoError(t, ts.Close())
}

func TestProvisionMCPMissingCommand(t *testing.T) {
	ts := ProvisionMCP(context.Background(), &config.MCPConfig{Command: "/nonexistent/es-mcp"}, logx.NewLogger("test"))
	assert.Equal(t, 0, ts.Registry.Len())
}

func TestProvisionBackends(t *testing.T) {
	ctx := context.Background()

	ts, err := Provision(ctx, &config.SearchConfig{Backend: config.SearchBackendNone}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ts.Registry.Len())

	ts, err = Provision(ctx, &config.SearchConfig{
		Backend:      config.SearchBackendLocal,
		Index:        "parking",
		PayloadParam: "queryBody",
		Local:        config.LocalSearchConfig{Documents: filepath.Join("testdata", "parking.json")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.Registry.Len())
	assert.NoError(t, ts.Close())

	_, err = Provision(ctx, &config.SearchConfig{Backend: config.SearchBackendLocal, Local: config.LocalSearchConfig{Documents: "missing.json"}}, nil)
	assert.Error(t, err)

	_, err = Provision(ctx, &config.SearchConfig{Backend: "solr"}, nil)
	assert.Error(t, err)
}
