package llm

import (
	"testing"
)

func TestConvertToAnthropicToolsKeepsCodeExecution(t *testing.T) {
	tools := []ToolDefinition{
		CodeExecutionTool(),
		{
			Name:        "fetch_url",
			Description: "Fetch a page",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"url"},
			},
		},
	}

	converted := convertToAnthropicTools(tools)
	if len(converted) != 2 {
		t.Fatalf("expected 2 tools on the wire, got %d", len(converted))
	}

	if converted[0].OfCodeExecutionTool20250825 == nil {
		t.Error("expected code execution capability as a server-side tool param")
	}
	if converted[0].OfTool != nil {
		t.Error("capability tag must not be sent as a schema tool")
	}

	if converted[1].OfTool == nil {
		t.Fatal("expected schema tool param for fetch_url")
	}
	if converted[1].OfTool.Name != "fetch_url" {
		t.Errorf("tool name = %q, want fetch_url", converted[1].OfTool.Name)
	}
	if got := converted[1].OfTool.InputSchema.Required; len(got) != 1 || got[0] != "url" {
		t.Errorf("required = %v, want [url]", got)
	}
}

func TestConvertToAnthropicToolsSkipsUnknownCapability(t *testing.T) {
	tools := []ToolDefinition{
		{Name: "mystery", Type: "mystery_20990101"},
	}
	if converted := convertToAnthropicTools(tools); len(converted) != 0 {
		t.Errorf("expected unknown capability tag to be omitted, got %d tools", len(converted))
	}
}
