package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemas holds the compiled JSON Schema for each method's params, used
// to reject malformed requests with CodeInvalidParams before they ever
// reach the Request Handler.
var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
)

const taskIDParamsSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"pushNotificationConfigId": {"type": "string"},
		"historyLength": {"type": "integer"},
		"metadata": {"type": "object"}
	}
}`

const messageSendParamsSchema = `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {
			"type": "object",
			"required": ["role", "parts"],
			"properties": {
				"role": {"enum": ["user", "agent"]},
				"parts": {"type": "array", "minItems": 1}
			}
		},
		"configuration": {"type": "object"},
		"metadata": {"type": "object"}
	}
}`

const taskPushNotificationConfigSchema = `{
	"type": "object",
	"required": ["taskId", "pushNotificationConfig"],
	"properties": {
		"taskId": {"type": "string", "minLength": 1},
		"pushNotificationConfig": {
			"type": "object",
			"required": ["url"],
			"properties": {"url": {"type": "string", "minLength": 1}}
		}
	}
}`

func compileSchemas() map[string]*jsonschema.Schema {
	sources := map[string]string{
		methodTasksGet:          taskIDParamsSchema,
		methodTasksCancel:       taskIDParamsSchema,
		methodTasksResubscribe:  taskIDParamsSchema,
		methodPushConfigGet:     taskIDParamsSchema,
		methodPushConfigList:    taskIDParamsSchema,
		methodPushConfigDelete:  taskIDParamsSchema,
		methodMessageSend:       messageSendParamsSchema,
		methodMessageStream:     messageSendParamsSchema,
		methodPushConfigSet:     taskPushNotificationConfigSchema,
	}
	compiled := make(map[string]*jsonschema.Schema, len(sources))
	for method, src := range sources {
		c := jsonschema.NewCompiler()
		resourceName := method + ".json"
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(src)))
		if err != nil {
			panic(fmt.Sprintf("jsonrpc: invalid embedded schema for %s: %v", method, err))
		}
		if err := c.AddResource(resourceName, doc); err != nil {
			panic(fmt.Sprintf("jsonrpc: invalid embedded schema for %s: %v", method, err))
		}
		schema, err := c.Compile(resourceName)
		if err != nil {
			panic(fmt.Sprintf("jsonrpc: failed to compile schema for %s: %v", method, err))
		}
		compiled[method] = schema
	}
	return compiled
}

// validateParams checks raw against the compiled schema for method, if one
// is registered. Methods with no params (none currently) skip validation.
func validateParams(method string, raw json.RawMessage) error {
	schemaOnce.Do(func() { schemas = compileSchemas() })
	schema, ok := schemas[method]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return schema.Validate(v)
}
