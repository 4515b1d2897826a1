package match

import (
	"context"

	"quiz-arena/internal/domain"
)

// MessageType names the match lifecycle signals carried by a room channel.
type MessageType string

const (
	// Produced by participants.
	MsgJoinRoom       MessageType = "join-room"
	MsgUpdateProgress MessageType = "update-progress"
	MsgQuizCompleted  MessageType = "quiz-completed"
	MsgLeaveRoom      MessageType = "leave-room"
	// Produced by the room arbiter.
	MsgMatchReady MessageType = "match-ready"
	MsgGameOver   MessageType = "game-over"
)

// Message is the envelope published on a room channel. Exactly one of the
// payload pointers is set depending on Type.
type Message struct {
	Type       MessageType              `json:"type"`
	RoomID     string                   `json:"roomId"`
	SenderID   string                   `json:"senderId,omitempty"`
	Progress   *domain.ProgressUpdate   `json:"progress,omitempty"`
	Completion *domain.CompletionReport `json:"completion,omitempty"`
	Verdict    *domain.Verdict          `json:"verdict,omitempty"`
}

// RoomChannel is the room-scoped publish/subscribe transport. Delivery is
// best-effort: publishes are not acknowledged and subscribers may miss
// messages under pressure; the protocol tolerates both.
type RoomChannel interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context) (<-chan Message, func(), error)
}

// ChannelFactory hands out the channel for a room.
type ChannelFactory interface {
	Channel(roomID string) RoomChannel
}
