package server

import (
	"strings"
	"testing"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("duplicate tool %s", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	expected := []string{ToolBatch, ToolStatus}
	for _, op := range job.Operations() {
		expected = append(expected, "doc_"+op.String())
	}
	for _, name := range expected {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if strings.TrimSpace(tool.Description) == "" {
				t.Error("missing description")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("schema type: got %v", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"].(map[string]interface{}); !ok {
				t.Error("schema has no properties map")
			}
		})
	}
}

func TestToolDefinitions_Required(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			props := tool.InputSchema["properties"].(map[string]interface{})
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required %q is not a property", r)
				}
			}
			switch tool.Name {
			case ToolStatus:
				if len(required) != 0 {
					t.Errorf("doc_status takes no required arguments, got %v", required)
				}
			case ToolBatch:
				if len(required) != 2 {
					t.Errorf("doc_batch required: got %v", required)
				}
			default:
				if len(required) != 1 || required[0] != "inputs" {
					t.Errorf("required: got %v, want [inputs]", required)
				}
			}
		})
	}
}

func TestToolDefinitions_BatchOperations(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		if tool.Name != ToolBatch {
			continue
		}
		props := tool.InputSchema["properties"].(map[string]interface{})
		enum := props["operation"].(map[string]interface{})["enum"].([]string)
		if len(enum) != len(job.Operations()) {
			t.Errorf("operation enum: got %v", enum)
		}
		for _, name := range enum {
			if _, err := job.ParseOperation(name); err != nil {
				t.Errorf("enum value %q does not parse: %v", name, err)
			}
		}
		return
	}
	t.Fatal("doc_batch not defined")
}
