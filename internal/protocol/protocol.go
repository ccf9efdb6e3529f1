// Package protocol defines the control vocabulary exchanged over a mission's
// WebSocket. Binary frames carry raw PCM audio and never pass through this
// package; text frames carry the JSON control messages encoded and decoded
// here.
//
// Client to engine:
//
//	{"action":"start_speech"} {"action":"stop_speech"} {"action":"ready_for_next"}
//
// Engine to client:
//
//	{"status":"dialogue_start","speaker":"Luna Vale"}
//	{"status":"dialogue_end"}
//	{"status":"interrupted"}
//	{"status":"generation_stalled"} {"status":"generation_resumed"}
//	{"status":"listeners","awakened_listeners":42,"total_listeners":1200}
//	{"status":"error","code":"mission_not_found"}
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is a client control request.
type Action string

const (
	ActionStartSpeech  Action = "start_speech"
	ActionStopSpeech   Action = "stop_speech"
	ActionReadyForNext Action = "ready_for_next"
)

// Status identifies an engine to client control message.
type Status string

const (
	StatusDialogueStart     Status = "dialogue_start"
	StatusDialogueEnd       Status = "dialogue_end"
	StatusInterrupted       Status = "interrupted"
	StatusGenerationStalled Status = "generation_stalled"
	StatusGenerationResumed Status = "generation_resumed"
	StatusListeners         Status = "listeners"
	StatusError             Status = "error"
)

// Error codes sent with [StatusError] before a rejected connection closes.
const (
	CodeMissionNotFound = "mission_not_found"
	CodeMissionNotReady = "mission_not_ready"
	CodeSessionActive   = "session_active"
	CodeInternal        = "internal"
)

// DecodeError describes a client frame that could not be understood.
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
		return "protocol: " + e.Message
	}
	return fmt.Sprintf("protocol: %s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientMessage is a decoded client control frame.
type ClientMessage struct {
	Action Action `json:"action"`
}

// DecodeClientMessage parses one text frame. The returned error is always a
// *DecodeError.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, badRequest("invalid json frame", "")
	}
	msg.Action = Action(strings.TrimSpace(string(msg.Action)))
	switch msg.Action {
	case ActionStartSpeech, ActionStopSpeech, ActionReadyForNext:
		return msg, nil
	case "":
		return ClientMessage{}, badRequest("missing action", "action")
	default:
		return ClientMessage{}, unsupported("unknown action", string(msg.Action))
	}
}

// ServerMessage is one engine to client control frame. Fields not relevant to
// Status are omitted on the wire.
type ServerMessage struct {
	Status            Status `json:"status"`
	Speaker           string `json:"speaker,omitempty"`
	AwakenedListeners *int   `json:"awakened_listeners,omitempty"`
	TotalListeners    *int   `json:"total_listeners,omitempty"`
	Code              string `json:"code,omitempty"`
}

// Encode marshals m for a text frame.
func (m ServerMessage) Encode() ([]byte, error) {
	if m.Status == "" {
		return nil, fmt.Errorf("protocol: encode: empty status")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Status, err)
	}
	return b, nil
}

// ── Constructors ─────────────────────────────────────────────────────────────

func DialogueStart(speaker string) ServerMessage {
	return ServerMessage{Status: StatusDialogueStart, Speaker: speaker}
}

func DialogueEnd() ServerMessage { return ServerMessage{Status: StatusDialogueEnd} }

func Interrupted() ServerMessage { return ServerMessage{Status: StatusInterrupted} }

func GenerationStalled() ServerMessage { return ServerMessage{Status: StatusGenerationStalled} }

func GenerationResumed() ServerMessage { return ServerMessage{Status: StatusGenerationResumed} }

// Listeners reports the awakened-listener score. Both counts are always
// present, including zero.
func Listeners(awakened, total int) ServerMessage {
	return ServerMessage{Status: StatusListeners, AwakenedListeners: &awakened, TotalListeners: &total}
}

func Error(code string) ServerMessage { return ServerMessage{Status: StatusError, Code: code} }
