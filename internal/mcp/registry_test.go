package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoParams struct {
	Message string `json:"message" description:"text to echo"`
	Count   int    `json:"count,omitempty"`
}

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()

	Register(r, ToolDef{
		Name:        "echo",
		Description: "echoes a message",
		Target:      TargetGlobal,
		Access:      AccessRead,
	}, func(ctx context.Context, req *mcp_sdk.CallToolRequest, params *echoParams) (*mcp_sdk.CallToolResult, any, error) {
		return nil, params.Message, nil
	})

	if _, ok := r.GetTool("echo"); !ok {
		t.Fatal("tool not registered")
	}

	result, err := r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result != "hi" {
		t.Errorf("result = %v, want hi", result)
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.CallTool(context.Background(), "nope", nil)
	if err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRegistryHandlerErrorPropagates(t *testing.T) {
	r := NewRegistry()

	Register(r, ToolDef{Name: "fail"}, func(ctx context.Context, req *mcp_sdk.CallToolRequest, params *echoParams) (*mcp_sdk.CallToolResult, any, error) {
		return nil, nil, fmt.Errorf("boom")
	})

	_, err := r.CallTool(context.Background(), "fail", json.RawMessage(`{}`))
	if err == nil || err.Error() != "boom" {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()

	names := []string{"c", "a", "b"}
	for _, name := range names {
		Register(r, ToolDef{Name: name}, func(ctx context.Context, req *mcp_sdk.CallToolRequest, params *echoParams) (*mcp_sdk.CallToolResult, any, error) {
			return nil, nil, nil
		})
	}

	tools := r.GetAllTools()
	if len(tools) != len(names) {
		t.Fatalf("tool count = %d, want %d", len(tools), len(names))
	}
	for i, tool := range tools {
		if tool.Name != names[i] {
			t.Errorf("tools[%d] = %s, want %s", i, tool.Name, names[i])
		}
	}
}

func TestGenerateSchemaFromStruct(t *testing.T) {
	schema := GenerateSchema[*echoParams]()

	if schema["type"] != "object" {
		t.Errorf("type = %v, want object", schema["type"])
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("missing properties")
	}

	msg, ok := props["message"].(map[string]any)
	if !ok {
		t.Fatal("missing message property")
	}
	if msg["type"] != "string" {
		t.Errorf("message type = %v, want string", msg["type"])
	}
	if msg["description"] != "text to echo" {
		t.Errorf("message description = %v", msg["description"])
	}

	count, ok := props["count"].(map[string]any)
	if !ok {
		t.Fatal("missing count property")
	}
	if count["type"] != "integer" {
		t.Errorf("count type = %v, want integer", count["type"])
	}

	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "message" {
		t.Errorf("required = %v, want [message]", schema["required"])
	}
}

func TestToJSONSchemaConversion(t *testing.T) {
	schema := toJSONSchema(GenerateSchema[*echoParams]())
	if schema.Type != "object" {
		t.Errorf("type = %q, want object", schema.Type)
	}
	if _, ok := schema.Properties["message"]; !ok {
		t.Error("missing message property")
	}

	fallback := toJSONSchema(nil)
	if fallback.Type != "object" {
		t.Errorf("fallback type = %q, want object", fallback.Type)
	}
}

func TestGenerateSchemaNestedTypes(t *testing.T) {
	type nested struct {
		Tags map[string]string `json:"tags,omitempty"`
		IDs  []int             `json:"ids,omitempty"`
	}

	schema := GenerateSchema[nested]()
	props := schema["properties"].(map[string]any)

	tags := props["tags"].(map[string]any)
	if tags["type"] != "object" {
		t.Errorf("tags type = %v, want object", tags["type"])
	}

	ids := props["ids"].(map[string]any)
	if ids["type"] != "array" {
		t.Errorf("ids type = %v, want array", ids["type"])
	}
	items := ids["items"].(map[string]any)
	if items["type"] != "integer" {
		t.Errorf("ids items type = %v, want integer", items["type"])
	}
}
