package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/trustgraph-ai/gambiarra/internal/config"
	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/internal/protocol"
	"github.com/trustgraph-ai/gambiarra/internal/transport"
)

const clientName = "gambiarra-client"

// clientSession tracks the one server-assigned session this client process
// drives, and the connection it speaks the wire protocol over.
type clientSession struct {
	log      *slog.Logger
	conn     *transport.Conn
	executor *filecontext.Executor
	sessCfg  config.SessionConfig

	mu        sync.Mutex
	sessionID string
	created   chan struct{}
	turnDone  chan struct{}
}

func newClientSession(log *slog.Logger, conn *transport.Conn, executor *filecontext.Executor, sessCfg config.SessionConfig) *clientSession {
	return &clientSession{
		log:      log,
		conn:     conn,
		executor: executor,
		sessCfg:  sessCfg,
		created:  make(chan struct{}),
		turnDone: make(chan struct{}, 1),
	}
}

func (s *clientSession) connectAndCreateSession() error {
	if err := s.conn.Send(protocol.Frame{
		Type: protocol.FrameConnect,
		Payload: mustPayload(protocol.ConnectPayload{
			ProtocolVersion: clientProtocolVersion,
			ClientInfo:      protocol.ClientInfo{Name: clientName, Version: version},
		}),
	}); err != nil {
		return err
	}

	mode := s.sessCfg.OperatingMode
	if mode == "" {
		mode = "code"
	}
	if err := s.conn.Send(protocol.Frame{
		Type: protocol.FrameCreateSession,
		Payload: mustPayload(protocol.CreateSessionPayload{Config: protocol.CreateSessionConfig{
			AutoApproveReads:         s.sessCfg.AutoApproveReads,
			RequireApprovalForWrites: s.sessCfg.RequireApprovalForWrites,
			MaxConcurrentFileReads:   s.sessCfg.MaxConcurrentFileReads,
			OperatingMode:            mode,
		}}),
	}); err != nil {
		return err
	}

	<-s.created
	return nil
}

func (s *clientSession) sendUserMessage(content string) error {
	return s.conn.Send(protocol.Frame{
		Type:      protocol.FrameUserMessage,
		SessionID: s.currentSessionID(),
		Payload:   mustPayload(protocol.UserMessagePayload{Message: protocol.UserMessageBody{Content: content}}),
	})
}

func (s *clientSession) currentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// handle dispatches one frame arriving from the orchestration server.
func (s *clientSession) handle(frame protocol.Frame) {
	ctx := context.Background()
	var err error
	switch frame.Type {
	case protocol.FrameConnected:
		// Nothing to do; create_session was already sent.
	case protocol.FrameSessionCreated:
		err = s.onSessionCreated(frame)
	case protocol.FrameAIResponseChunk:
		err = s.onResponseChunk(frame)
	case protocol.FrameToolApprovalRequest:
		err = s.onApprovalRequest(frame)
	case protocol.FrameExecuteTool:
		err = s.onExecuteTool(ctx, frame)
	case protocol.FrameToolDenied:
		err = s.onToolDenied(frame)
	case protocol.FrameError:
		err = s.onError(frame)
	default:
		s.log.Warn("client: unhandled frame type", "type", frame.Type)
	}
	if err != nil {
		s.log.Error("client: frame handling failed", "type", frame.Type, "error", err)
	}
}

func (s *clientSession) onSessionCreated(frame protocol.Frame) error {
	var payload protocol.SessionCreatedPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionID = payload.SessionID
	s.mu.Unlock()
	close(s.created)
	return nil
}

func (s *clientSession) onResponseChunk(frame protocol.Frame) error {
	var payload protocol.AIResponseChunkPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	if payload.Chunk.Content != "" {
		fmt.Print(payload.Chunk.Content)
	}
	if payload.Chunk.IsComplete {
		fmt.Println()
		select {
		case s.turnDone <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *clientSession) onToolDenied(frame protocol.Frame) error {
	var payload protocol.ToolDeniedPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	fmt.Printf("\n[tool denied: %s — %s]\n", payload.ToolName, payload.Reason)
	return nil
}

func (s *clientSession) onError(frame protocol.Frame) error {
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	fmt.Printf("\n[server error: %s — %s]\n", payload.Error.Code, payload.Error.Message)
	select {
	case s.turnDone <- struct{}{}:
	default:
	}
	return nil
}

// onApprovalRequest prompts the operator on the terminal for a tool
// approval decision, grounded on the predecessor's interactive
// request_user_approval callback.
func (s *clientSession) onApprovalRequest(frame protocol.Frame) error {
	var payload protocol.ToolApprovalRequestPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}

	fmt.Printf("\n[approval requested] tool=%s risk=%s params=%v\napprove? [y/N/e(dit feedback)] ",
		payload.Tool.Name, payload.Tool.RiskLevel, payload.Tool.Parameters)

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))

	decision := "denied"
	feedback := ""
	switch answer {
	case "y", "yes":
		decision = "approved"
	default:
		feedback = "denied by operator"
	}

	return s.conn.Send(protocol.Frame{
		Type:      protocol.FrameToolApprovalResponse,
		SessionID: s.currentSessionID(),
		RequestID: frame.RequestID,
		Payload: mustPayload(protocol.ToolApprovalResponsePayload{
			Decision: decision,
			Feedback: feedback,
		}),
	})
}

// onExecuteTool runs the named tool through the executor, inside the
// sandbox root, and reports the result back to the server.
func (s *clientSession) onExecuteTool(ctx context.Context, frame protocol.Frame) error {
	var payload protocol.ExecuteToolPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}

	result := s.executor.Execute(ctx, payload.Tool.Name, payload.Tool.Parameters)

	return s.conn.Send(protocol.Frame{
		Type:        protocol.FrameToolResult,
		SessionID:   s.currentSessionID(),
		ExecutionID: frame.ExecutionID,
		Payload:     mustPayload(protocol.ToolResultPayload{Result: result}),
	})
}

func mustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
