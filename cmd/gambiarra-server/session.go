package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/trustgraph-ai/gambiarra/internal/agent"
	"github.com/trustgraph-ai/gambiarra/internal/approval"
	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/internal/memory"
	"github.com/trustgraph-ai/gambiarra/internal/protocol"
	"github.com/trustgraph-ai/gambiarra/internal/transport"
	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

// connection holds the per-websocket state the orchestration server keeps
// for one workspace client: its live sessions, each with its own
// LoopSession/Pipeline pair, mirroring spec §4.1's one-session-per-
// create_session-frame model.
type connection struct {
	log  *slog.Logger
	loop *agent.AgenticLoop
	conn *transport.Conn

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	loop     *agent.LoopSession
	pipeline *approval.Pipeline
}

func newConnection(log *slog.Logger, loop *agent.AgenticLoop, conn *transport.Conn) *connection {
	return &connection{
		log:      log,
		loop:     loop,
		conn:     conn,
		sessions: make(map[string]*sessionState),
	}
}

// handle dispatches one decoded frame from the workspace client. It never
// blocks the transport's read pump beyond the synchronous work of a single
// model round-trip, matching the wire protocol's one-in-flight-turn-per-
// session invariant.
func (c *connection) handle(ctx context.Context) func(protocol.Frame) {
	return func(frame protocol.Frame) {
		var err error
		switch frame.Type {
		case protocol.FrameConnect:
			err = c.handleConnect(frame)
		case protocol.FrameCreateSession:
			err = c.handleCreateSession(frame)
		case protocol.FrameUserMessage:
			err = c.handleUserMessage(ctx, frame)
		case protocol.FrameToolApprovalResponse:
			err = c.handleApprovalResponse(ctx, frame)
		case protocol.FrameToolResult:
			err = c.handleToolResult(ctx, frame)
		default:
			c.log.Warn("server: unhandled frame type", "type", frame.Type)
			return
		}
		if err != nil {
			c.log.Error("server: frame handling failed", "type", frame.Type, "error", err)
			_ = c.conn.Send(protocol.Frame{
				Type:      protocol.FrameError,
				SessionID: frame.SessionID,
				Payload: mustPayload(protocol.ErrorPayload{Error: protocol.ErrorBody{
					Code:    protocol.CodeMessageProcessingError,
					Message: err.Error(),
				}}),
			})
		}
	}
}

func (c *connection) handleConnect(frame protocol.Frame) error {
	var payload protocol.ConnectPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	c.log.Info("server: client connected", "name", payload.ClientInfo.Name, "version", payload.ClientInfo.Version)
	return c.conn.Send(protocol.Frame{
		Type: protocol.FrameConnected,
		Payload: mustPayload(protocol.ConnectedPayload{ServerInfo: protocol.ServerInfo{
			Version:        serverVersion,
			AvailableTools: knownToolNames(),
		}}),
	})
}

func (c *connection) handleCreateSession(frame protocol.Frame) error {
	var payload protocol.CreateSessionPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}

	mode := models.OperatingMode(payload.Config.OperatingMode)
	if mode == "" {
		mode = models.ModeCode
	}

	sessionID := uuid.NewString()
	sess := agent.NewLoopSession(sessionID, mode, c.log, memory.Config{})
	tracker := filecontext.New(c.log, 0)
	pipeline := c.loop.NewPipeline(sess, tracker)

	c.mu.Lock()
	c.sessions[sessionID] = &sessionState{loop: sess, pipeline: pipeline}
	c.mu.Unlock()

	return c.conn.Send(protocol.Frame{
		Type:      protocol.FrameSessionCreated,
		SessionID: sessionID,
		Payload: mustPayload(protocol.SessionCreatedPayload{
			SessionID: sessionID,
			Status:    "ready",
		}),
	})
}

func (c *connection) get(sessionID string) *sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[sessionID]
}

func (c *connection) handleUserMessage(ctx context.Context, frame protocol.Frame) error {
	state := c.get(frame.SessionID)
	if state == nil {
		return errUnknownSession(frame.SessionID)
	}
	var payload protocol.UserMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	return c.loop.HandleUserMessage(ctx, state.loop, state.pipeline, c.conn, payload.Message.Content)
}

func (c *connection) handleApprovalResponse(ctx context.Context, frame protocol.Frame) error {
	state := c.get(frame.SessionID)
	if state == nil {
		return errUnknownSession(frame.SessionID)
	}
	var payload protocol.ToolApprovalResponsePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	return c.loop.HandleApprovalResponse(ctx, state.loop, state.pipeline, c.conn,
		frame.RequestID, models.ApprovalDecision(payload.Decision), payload.ModifiedParameters, payload.Feedback)
}

func (c *connection) handleToolResult(ctx context.Context, frame protocol.Frame) error {
	state := c.get(frame.SessionID)
	if state == nil {
		return errUnknownSession(frame.SessionID)
	}
	var payload protocol.ToolResultPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	return c.loop.HandleToolResult(ctx, state.loop, state.pipeline, c.conn, frame.ExecutionID, payload.Result)
}
