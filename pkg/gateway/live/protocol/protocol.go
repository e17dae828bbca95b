package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientSetup opens a call. Caller is whatever stable identity the telephony
// provider hands us, normally an E.164 phone number.
type ClientSetup struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CallID          string `json:"call_id"`
	Caller          string `json:"caller"`
	Provider        string `json:"provider,omitempty"`
}

func (s ClientSetup) RedactedForLog() map[string]any {
	caller := strings.TrimSpace(s.Caller)
	if len(caller) > 4 {
		caller = "..." + caller[len(caller)-4:]
	}
	return map[string]any{
		"type":             s.Type,
		"protocol_version": s.ProtocolVersion,
		"call_id":          s.CallID,
		"caller_suffix":    caller,
		"provider":         s.Provider,
	}
}

// ClientTurn carries one recognized speech segment. Only final segments drive
// the session; partials may arrive and are acknowledged but not processed.
type ClientTurn struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ClientInterrupt signals the caller started speaking over playback.
type ClientInterrupt struct {
	Type string `json:"type"`
}

type ClientClose struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "setup":
		var msg ClientSetup
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setup frame", "")
		}
		if err := ValidateSetup(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "turn":
		var msg ClientTurn
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("turn.text is required", "text")
		}
		return msg, nil
	case "interrupt":
		var msg ClientInterrupt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid interrupt frame", "")
		}
		return msg, nil
	case "close":
		var msg ClientClose
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid close frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateSetup(msg ClientSetup) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("setup.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.ProtocolVersion) != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.CallID) == "" {
		return badRequest("setup.call_id is required", "call_id")
	}
	if strings.TrimSpace(msg.Caller) == "" {
		return badRequest("setup.caller is required", "caller")
	}
	return nil
}

type ServerSetupAck struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ServerSay is one outbound spoken line; the transport renders it to audio.
type ServerSay struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	Interruptible bool   `json:"interruptible"`
}

type ServerEnd struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewSetupAck(sessionID string) ServerSetupAck {
	return ServerSetupAck{Type: "setup_ack", ProtocolVersion: ProtocolVersion1, SessionID: sessionID}
}

func NewSay(text string) ServerSay {
	return ServerSay{Type: "say", Text: text, Interruptible: true}
}

func NewEnd(reason string) ServerEnd {
	return ServerEnd{Type: "end", Reason: reason}
}

func NewError(code, message, param string, close bool) ServerError {
	return ServerError{Type: "error", Code: code, Message: message, Param: param, Close: close}
}

func NewWarning(code, message string) ServerWarning {
	return ServerWarning{Type: "warning", Code: code, Message: message}
}
