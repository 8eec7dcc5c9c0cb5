package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-crabs/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Hello *Hello `json:"hello,omitempty"`
	Move  *Move  `json:"move,omitempty"`
	Say   *Say   `json:"say,omitempty"`
}

// Hello binds the connection to a session, creating its avatar if needed.
type Hello struct {
	SessionId string `json:"session_id"`
}

type Move struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Say struct {
	Text string `json:"text"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Snapshot is the full visible state of the canvas at one instant.
type Snapshot struct {
	Avatars  []types.Avatar  `json:"avatars"`
	Messages []types.Message `json:"messages"`
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "", nil)
}

func ErrAvatarNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "avatar not found", nil)
}

func ErrNoSession(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "hello required", nil)
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, reason, nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newResponse(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func SnapshotMessage(s *Snapshot) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Snapshot: s,
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
