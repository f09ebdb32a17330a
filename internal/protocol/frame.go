// Package protocol defines the wire frame taxonomy exchanged between the
// orchestration server and the workspace client over a single bidirectional
// ordered byte stream: one JSON object per frame, correlated by
// request_id/execution_id rather than by transport-level request/response.
package protocol

import "encoding/json"

// FrameType enumerates every frame type that may cross the wire.
type FrameType string

const (
	FrameConnect               FrameType = "connect"
	FrameConnected             FrameType = "connected"
	FrameCreateSession         FrameType = "create_session"
	FrameSessionCreated        FrameType = "session_created"
	FrameUserMessage           FrameType = "user_message"
	FrameAIResponseChunk       FrameType = "ai_response_chunk"
	FrameToolApprovalRequest   FrameType = "tool_approval_request"
	FrameToolApprovalResponse  FrameType = "tool_approval_response"
	FrameExecuteTool           FrameType = "execute_tool"
	FrameToolResult            FrameType = "tool_result"
	FrameToolResultReceived    FrameType = "tool_result_received"
	FrameToolDenied            FrameType = "tool_denied"
	FrameError                 FrameType = "error"
)

// Frame is the envelope every wire message shares. SessionID is present
// whenever a session already exists for the exchange; RequestID and
// ExecutionID carry the correlation keys named in spec §4.1 for the frame
// types that need them. Payload holds the type-specific body and is
// re-marshaled/unmarshaled by the type-specific structs below.
type Frame struct {
	Type        FrameType       `json:"type"`
	SessionID   string          `json:"session_id,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ClientInfo identifies the connecting workspace client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ConnectPayload is the body of a connect frame (client to server).
type ConnectPayload struct {
	ProtocolVersion int        `json:"protocol_version"`
	ClientInfo      ClientInfo `json:"client_info"`
}

// ServerInfo describes the orchestration server's capabilities.
type ServerInfo struct {
	Version         string   `json:"version"`
	AvailableTools  []string `json:"available_tools"`
}

// ConnectedPayload is the body of a connected frame (server to client).
type ConnectedPayload struct {
	ServerInfo ServerInfo `json:"server_info"`
}

// CreateSessionConfig mirrors models.SessionConfig on the wire.
type CreateSessionConfig struct {
	WorkingDirectory         string `json:"working_directory"`
	AutoApproveReads         bool   `json:"auto_approve_reads"`
	RequireApprovalForWrites bool   `json:"require_approval_for_writes"`
	MaxConcurrentFileReads   int    `json:"max_concurrent_file_reads"`
	OperatingMode            string `json:"operating_mode,omitempty"`
}

// CreateSessionPayload is the body of a create_session frame.
type CreateSessionPayload struct {
	Config CreateSessionConfig `json:"config"`
}

// SessionCreatedPayload is the body of a session_created frame.
type SessionCreatedPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// UserMessageBody carries the user's turn content.
type UserMessageBody struct {
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// UserMessagePayload is the body of a user_message frame.
type UserMessagePayload struct {
	Message UserMessageBody `json:"message"`
}

// ResponseChunk is one streamed fragment of assistant output.
type ResponseChunk struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

// AIResponseChunkPayload is the body of an ai_response_chunk frame.
type AIResponseChunkPayload struct {
	Chunk ResponseChunk `json:"chunk"`
}

// ToolSpec describes a tool invocation as presented for approval.
type ToolSpec struct {
	Name             string         `json:"name"`
	Parameters       map[string]any `json:"parameters"`
	Description      string         `json:"description"`
	RiskLevel        string         `json:"risk_level"`
	RequiresApproval bool           `json:"requires_approval"`
}

// ToolApprovalRequestPayload is the body of a tool_approval_request frame.
type ToolApprovalRequestPayload struct {
	Tool ToolSpec `json:"tool"`
}

// ToolApprovalResponsePayload is the body of a tool_approval_response frame.
type ToolApprovalResponsePayload struct {
	Decision           string         `json:"decision"`
	Feedback           string         `json:"feedback,omitempty"`
	ModifiedParameters map[string]any `json:"modified_parameters,omitempty"`
}

// ExecuteToolBody names the tool and its (possibly modified) parameters.
type ExecuteToolBody struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ExecuteToolPayload is the body of an execute_tool frame.
type ExecuteToolPayload struct {
	Tool ExecuteToolBody `json:"tool"`
}

// ResultBody is the tool's reported outcome.
type ResultBody struct {
	Status   string         `json:"status"`
	Data     string         `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *ErrorBody     `json:"error,omitempty"`
}

// ToolResultPayload is the body of a tool_result frame.
type ToolResultPayload struct {
	Result ResultBody `json:"result"`
}

// ToolResultReceivedPayload is the body of a tool_result_received frame.
type ToolResultReceivedPayload struct {
	Status string `json:"status"`
}

// ToolDeniedPayload is the body of a tool_denied frame.
type ToolDeniedPayload struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

// ErrorBody is the structured detail of an error frame.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Error ErrorBody `json:"error"`
}
