package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kindline-ai/kindline/pkg/gateway/convert"
	"github.com/kindline-ai/kindline/pkg/gateway/enrichment"
	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/live/protocol"
	"github.com/kindline-ai/kindline/pkg/gateway/live/sessions"
	"github.com/kindline-ai/kindline/pkg/gateway/memory"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
)

const personaPrompt = "You are a warm, attentive phone companion. Keep replies short and conversational, one or two sentences of plain speech, no markdown. Stay with the caller's topic and ask gentle follow-up questions."

// checkBackLine is spoken when an internal dependency fails mid-turn. The
// caller is never told the system broke.
const checkBackLine = "Let me check on that, tell me a bit more in the meantime."

// resendConfirmLine is spoken after a fresh checkout link goes out by text.
const resendConfirmLine = "Just sent it again, it should pop up on your phone in a moment."

// flowSuspendTurns is how many consecutive delegated turns during an active
// payment flow we tolerate before suspending flow-directed responses for the
// rest of the call. The persisted step is left untouched.
const flowSuspendTurns = 3

type sessionState int

const (
	stateSetup sessionState = iota
	stateActive
	stateClosed
)

// Conn is the subset of *websocket.Conn the session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SetupError means identity resolution failed. The call cannot proceed on a
// real profile and ends right after the safe fallback greeting.
type SetupError struct {
	CallID string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("call setup failed for %s: %v", e.CallID, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []generation.Message) (string, error)
}

type Config struct {
	MaxJSONMessageBytes int64
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	TurnTimeout         time.Duration
	MaxSessionDuration  time.Duration
	MaxHistoryTurns     int
	ContextTokenBudget  int
	OutboundQueueSize   int
}

type Dependencies struct {
	Conn       Conn
	Logger     *slog.Logger
	Store      profile.Store
	Flow       *payment.Flow
	Trigger    *convert.Trigger
	Generator  Generator
	Screener   screening.Screener
	Enrichment *enrichment.Runner
	Tracker    *sessions.Tracker
	SessionID  string
	Config     Config
	Now        func() time.Time
}

// Session runs one phone call end to end: setup handshake, greeting, the
// per-turn pipeline, and the enrichment handoff at close.
type Session struct {
	conn      Conn
	logger    *slog.Logger
	store     profile.Store
	flow      *payment.Flow
	trigger   *convert.Trigger
	generator Generator
	screener  screening.Screener
	enrich    *enrichment.Runner
	tracker   *sessions.Tracker
	sessionID string
	cfg       Config
	now       func() time.Time

	unregister func()

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame
	sayEpoch         atomic.Int64

	state         sessionState
	prof          *profile.Profile
	bundle        memory.Bundle
	history       *historyManager
	callTurns     int
	triggerFired  bool
	flowDelegates int
	flowSuspended bool
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Flow == nil {
		return nil, fmt.Errorf("payment flow is required")
	}
	if deps.Trigger == nil {
		return nil, fmt.Errorf("conversion trigger is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Screener == nil {
		return nil, fmt.Errorf("screener is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 32
	}
	if deps.Config.TurnTimeout <= 0 {
		deps.Config.TurnTimeout = 15 * time.Second
	}
	if deps.Config.MaxHistoryTurns <= 0 {
		deps.Config.MaxHistoryTurns = 40
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:             deps.Conn,
		logger:           deps.Logger.With("session_id", deps.SessionID),
		store:            deps.Store,
		flow:             deps.Flow,
		trigger:          deps.Trigger,
		generator:        deps.Generator,
		screener:         deps.Screener,
		enrich:           deps.Enrichment,
		tracker:          deps.Tracker,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		history:          newHistoryManager(),
	}, nil
}

func (s *Session) ID() string { return s.sessionID }

// Cancel tears the session down from outside; the tracker uses it on
// shutdown and on caller preemption.
func (s *Session) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// SendWarning is the tracker-facing warning hook.
func (s *Session) SendWarning(code, message string) error {
	if s == nil {
		return nil
	}
	return s.sendPriority(protocol.NewWarning(code, message))
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) Run() error {
	defer s.cancel()
	defer s.close()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 16)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
			isStale:  s.isStaleEpoch,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	var sessionTimer *time.Timer
	if s.cfg.MaxSessionDuration > 0 {
		sessionTimer = time.NewTimer(s.cfg.MaxSessionDuration)
		defer sessionTimer.Stop()
	}
	sessionTimerCh := func() <-chan time.Time {
		if sessionTimer == nil {
			return nil
		}
		return sessionTimer.C
	}

	// flushAndClose gives the writer a moment to drain queued frames before
	// the context cancel tears the socket down.
	flushAndClose := func() error {
		drainDeadline := time.Now().Add(500 * time.Millisecond)
		for time.Now().Before(drainDeadline) {
			if len(s.outboundNormal) == 0 && len(s.outboundPriority) == 0 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		s.cancel()
		wait := 200 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		return nil
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			return err
		case <-sessionTimerCh():
			_ = s.sendPriority(protocol.NewWarning("session_timeout", "maximum call duration reached"))
			_ = s.sendPriority(protocol.NewEnd("session_timeout"))
			return flushAndClose()
		case frame, ok := <-readCh:
			if !ok || frame.err != nil {
				return flushAndClose()
			}
			if frame.messageType != websocket.TextMessage {
				s.logger.Warn("dropping non-text frame", "message_type", frame.messageType)
				continue
			}
			if s.cfg.ReadTimeout > 0 {
				_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			}
			msg, decErr := protocol.DecodeClientMessage(frame.data)
			if decErr != nil {
				// Malformed events are reported and ignored; the call goes on.
				s.logger.Warn("malformed client frame", "error", decErr)
				var de *protocol.DecodeError
				if errors.As(decErr, &de) {
					_ = s.sendPriority(protocol.NewError(de.Code, de.Message, de.Param, false))
				}
				continue
			}
			done, err := s.dispatch(msg)
			if err != nil {
				return err
			}
			if done {
				return flushAndClose()
			}
		}
	}
}

func (s *Session) dispatch(msg any) (done bool, err error) {
	switch m := msg.(type) {
	case protocol.ClientSetup:
		if s.state != stateSetup {
			_ = s.sendPriority(protocol.NewWarning("bad_request", "setup already completed"))
			return false, nil
		}
		greeting, setupErr := s.setup(s.ctx, m)
		if setupErr != nil {
			// The raw caller number stays out of logs.
			s.logger.Error("call setup failed", "setup", m.RedactedForLog(), "error", setupErr)
			_ = s.sendPriority(protocol.NewSetupAck(s.sessionID))
			_ = s.sendPriority(protocol.NewSay(fallbackGreeting))
			_ = s.sendPriority(protocol.NewEnd("setup_failed"))
			return true, nil
		}
		s.state = stateActive
		// Registration happens after identity resolution so the tracker can
		// preempt a stale session from the same caller.
		if s.tracker != nil {
			s.unregister = s.tracker.Register(s.sessionID, sessions.Handle{
				Caller: s.prof.Phone,
				Cancel: s.Cancel,
				Warn:   s.SendWarning,
			})
		}
		if err := s.sendPriority(protocol.NewSetupAck(s.sessionID)); err != nil {
			return false, err
		}
		return false, s.say(greeting)
	case protocol.ClientTurn:
		if s.state != stateActive {
			_ = s.sendPriority(protocol.NewWarning("bad_request", "turn before setup"))
			return false, nil
		}
		if !m.IsFinal {
			return false, nil
		}
		reply := s.respondTurn(s.ctx, m.Text)
		return false, s.say(reply)
	case protocol.ClientInterrupt:
		// The caller talked over us; drop queued speech and nothing else.
		s.sayEpoch.Add(1)
		return false, nil
	case protocol.ClientClose:
		_ = s.sendPriority(protocol.NewEnd("client_close"))
		return true, nil
	default:
		return false, nil
	}
}

// close runs as Run unwinds: the transcript goes to enrichment
// fire-and-forget, never blocking teardown.
func (s *Session) close() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	if s.unregister != nil {
		s.unregister()
	}
	if s.enrich != nil && s.prof != nil {
		if transcript := s.history.transcriptText(); transcript != "" {
			s.enrich.Submit(s.prof.ID, transcript)
		}
	}
}

func (s *Session) isStaleEpoch(epoch int64) bool {
	return epoch >= 0 && epoch < s.sayEpoch.Load()
}

func (s *Session) say(text string) error {
	payload, err := json.Marshal(protocol.NewSay(text))
	if err != nil {
		return err
	}
	frame := outboundFrame{epoch: s.sayEpoch.Load(), payload: payload}
	select {
	case s.outboundNormal <- frame:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Session) sendPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := outboundFrame{epoch: -1, payload: payload}
	select {
	case s.outboundPriority <- frame:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
