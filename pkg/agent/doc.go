// Package agent builds the LLM clients used by the pipeline stages.
//
// Each client is a provider implementation from internal/llmimpl wrapped in the
// middleware chain:
//
//	ErrorLogging -> EmptyResponseLogging -> Metrics -> Timeout -> provider
//
// Provider SDKs are kept private under internal/; callers only see llm.LLMClient.
package agent
