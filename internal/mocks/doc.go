// Package mocks provides shared mock implementations for testing.
//
//	mockLLM := mocks.NewMockLLMClient()
//	mockLLM.RespondInSequence(
//	    mocks.ToolCallResponse("t1", "search", args),
//	    mocks.TextResponse("done"),
//	)
//
// MockLLMClient records every request, so tests can assert on what a stage sent.
package mocks
