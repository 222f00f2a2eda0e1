package mcp

import (
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func textResult(text string, isErr bool) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		IsError: isErr,
		Content: []mcp_sdk.Content{&mcp_sdk.TextContent{Text: text}},
	}
}

// NewTextResult wraps text in a successful tool result.
func NewTextResult(text string) *mcp_sdk.CallToolResult {
	return textResult(text, false)
}

// NewErrorResult wraps msg in a tool result flagged as an error.
func NewErrorResult(msg string) *mcp_sdk.CallToolResult {
	return textResult(msg, true)
}
