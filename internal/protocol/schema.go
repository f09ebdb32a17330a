package protocol

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaRegistry lazily compiles the envelope schema and one payload schema
// per frame type on first use, then serves them read-only for the lifetime
// of the process.
type schemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	payloads map[FrameType]*jsonschema.Schema
}

var frameSchemas schemaRegistry

func initFrameSchemas() error {
	frameSchemas.once.Do(func() {
		env, err := jsonschema.CompileString("frame_envelope", frameEnvelopeSchema)
		if err != nil {
			frameSchemas.initErr = err
			return
		}
		frameSchemas.envelope = env

		defs := map[FrameType]string{
			FrameConnect:              connectPayloadSchema,
			FrameCreateSession:        createSessionPayloadSchema,
			FrameUserMessage:          userMessagePayloadSchema,
			FrameToolApprovalResponse: toolApprovalResponsePayloadSchema,
			FrameToolResult:           toolResultPayloadSchema,
		}

		frameSchemas.payloads = make(map[FrameType]*jsonschema.Schema, len(defs))
		for typ, raw := range defs {
			compiled, err := jsonschema.CompileString("frame_payload_"+string(typ), raw)
			if err != nil {
				frameSchemas.initErr = err
				return
			}
			frameSchemas.payloads[typ] = compiled
		}
	})
	return frameSchemas.initErr
}

// ValidateFrame validates a raw frame against the envelope schema and, if a
// payload schema is registered for the frame's type, against that too.
// Unknown types are not rejected here: the caller maps them to
// CodeUnknownMessageType per §6.
func ValidateFrame(raw []byte) (*Frame, error) {
	if err := initFrameSchemas(); err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, NewCodedError(CodeInvalidJSON, err.Error())
	}
	if err := frameSchemas.envelope.Validate(generic); err != nil {
		return nil, NewCodedError(CodeInvalidJSON, err.Error())
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, NewCodedError(CodeInvalidJSON, err.Error())
	}

	if schema, ok := frameSchemas.payloads[frame.Type]; ok {
		var payload any
		if len(frame.Payload) == 0 {
			payload = map[string]any{}
		} else if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return nil, NewCodedError(CodeInvalidJSON, err.Error())
		}
		if err := schema.Validate(payload); err != nil {
			return &frame, NewCodedError(CodeInvalidJSON, fmt.Sprintf("payload for %s: %v", frame.Type, err))
		}
	}

	return &frame, nil
}

const frameEnvelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "session_id": { "type": "string" },
    "request_id": { "type": "string" },
    "execution_id": { "type": "string" },
    "payload": {}
  },
  "additionalProperties": true
}`

const connectPayloadSchema = `{
  "type": "object",
  "required": ["protocol_version", "client_info"],
  "properties": {
    "protocol_version": { "type": "integer", "minimum": 1 },
    "client_info": {
      "type": "object",
      "required": ["name", "version"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "version": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

const createSessionPayloadSchema = `{
  "type": "object",
  "required": ["config"],
  "properties": {
    "config": {
      "type": "object",
      "required": ["working_directory"],
      "properties": {
        "working_directory": { "type": "string", "minLength": 1 },
        "auto_approve_reads": { "type": "boolean" },
        "require_approval_for_writes": { "type": "boolean" },
        "max_concurrent_file_reads": { "type": "integer", "minimum": 1 },
        "operating_mode": { "type": "string" }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

const userMessagePayloadSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {
      "type": "object",
      "required": ["content"],
      "properties": {
        "content": { "type": "string", "minLength": 1 },
        "images": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

const toolApprovalResponsePayloadSchema = `{
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": { "enum": ["approved", "denied", "approved_with_modification"] },
    "feedback": { "type": "string" },
    "modified_parameters": { "type": "object" }
  },
  "additionalProperties": true
}`

const toolResultPayloadSchema = `{
  "type": "object",
  "required": ["result"],
  "properties": {
    "result": {
      "type": "object",
      "required": ["status"],
      "properties": {
        "status": { "enum": ["success", "error"] },
        "data": { "type": "string" },
        "metadata": { "type": "object" },
        "error": { "type": "object" }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`
