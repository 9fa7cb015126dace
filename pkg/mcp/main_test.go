package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const fakeServerEnv = "BACKOFFICE_FAKE_MCP_SERVER"

func TestMain(m *testing.M) {
	if os.Getenv(fakeServerEnv) == "1" {
		runFakeServer(os.Stdin, os.Stdout)
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

// fakeOptions starts this test binary as a stdio MCP server.
func fakeOptions() *Options {
	return &Options{
		Command:      os.Args[0],
		Args:         []string{"-test.run=^$"},
		Env:          []string{fakeServerEnv + "=1"},
		CloseTimeout: 2 * time.Second,
	}
}

// runFakeServer answers initialize, tools/list and tools/call the way the
// Elasticsearch MCP server does.
func runFakeServer(in io.Reader, out io.Writer) {
	w := bufio.NewWriter(out)
	send := func(v any) {
		data, _ := json.Marshal(v)
		_, _ = w.Write(append(data, '\n'))
		_ = w.Flush()
	}

	_, _ = fmt.Fprintln(w, "fake elasticsearch mcp server starting")
	_ = w.Flush()

	initialized := false
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(line, &req) != nil {
			continue
		}
		reply := func(result any) {
			send(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		fail := func(code int, msg string) {
			send(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": code, "message": msg}})
		}

		switch req.Method {
		case "initialize":
			var p initializeParams
			_ = json.Unmarshal(req.Params, &p)
			if p.ProtocolVersion != ProtocolVersion {
				fail(CodeInvalidParams, "unsupported protocol")
				continue
			}
			reply(map[string]any{
				"protocolVersion": ProtocolVersion,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "fake-es", "version": "0.1.0"},
			})
		case "notifications/initialized":
			initialized = true
		case "tools/list":
			if !initialized {
				fail(CodeInvalidParams, "not initialized")
				continue
			}
			send(map[string]any{"jsonrpc": "2.0", "method": "notifications/message", "params": map[string]any{"level": "info"}})
			var p struct {
				Cursor string `json:"cursor"`
			}
			_ = json.Unmarshal(req.Params, &p)
			if p.Cursor == "" {
				reply(map[string]any{
					"tools": []map[string]any{{
						"name":        "search",
						"description": "Perform an Elasticsearch search",
						"inputSchema": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"index":     map[string]any{"type": "string"},
								"queryBody": map[string]any{"type": "object", "additionalProperties": map[string]any{}},
							},
							"required": []string{"index", "queryBody"},
						},
					}},
					"nextCursor": "page2",
				})
				continue
			}
			reply(map[string]any{"tools": []map[string]any{{
				"name":        "list_indices",
				"description": "List all available Elasticsearch indices",
				"inputSchema": map[string]any{"type": "object"},
			}}})
		case "tools/call":
			var p callToolParams
			_ = json.Unmarshal(req.Params, &p)
			switch p.Name {
			case "search":
				args, _ := json.Marshal(p.Arguments)
				reply(map[string]any{"content": []map[string]any{
					{"type": "text", "text": "Total results: 1"},
					{"type": "text", "text": string(args)},
				}})
			case "fail":
				reply(map[string]any{"content": []map[string]any{{"type": "text", "text": "index_not_found_exception"}}, "isError": true})
			case "slow":
				time.Sleep(300 * time.Millisecond)
				reply(map[string]any{"content": []map[string]any{{"type": "text", "text": "late"}}})
			case "crash":
				os.Exit(3)
			default:
				fail(CodeInvalidParams, "unknown tool "+p.Name)
			}
		default:
			fail(CodeMethodNotFound, "Method not found")
		}
	}
}
