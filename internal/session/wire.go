package session

import (
	"encoding/json"

	"github.com/pampa/chatd/internal/model"
)

// Inbound frame types accepted from the transport.
const (
	frameJoin    = "join"
	frameLeave   = "leave"
	frameSend    = "send"
	frameHistory = "history"
)

// inboundFrame is the client-to-coordinator wire format.
type inboundFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	Body   string `json:"body,omitempty"`
	Since  int64  `json:"since,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// joinedFrame acknowledges a successful join to the joining connection.
type joinedFrame struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Members []string `json:"members"`
}

// historyFrame carries an explicit history query result.
type historyFrame struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	Messages []model.Message `json:"messages"`
}

// errorFrame reports a per-operation failure back to the client.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func encodeJoined(roomID string, members []string) []byte {
	data, _ := json.Marshal(joinedFrame{Type: model.FrameJoined, RoomID: roomID, Members: members})
	return data
}

func encodeHistory(roomID string, msgs []model.Message) []byte {
	if msgs == nil {
		msgs = []model.Message{}
	}
	data, _ := json.Marshal(historyFrame{Type: model.FrameHistory, RoomID: roomID, Messages: msgs})
	return data
}

func encodeError(msg string) []byte {
	data, _ := json.Marshal(errorFrame{Type: model.FrameError, Error: msg})
	return data
}
