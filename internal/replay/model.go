package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultGameName is recorded for sessions registered implicitly by their
// first frame, before any explicit server-start event arrives.
const DefaultGameName = "Unknown Game"

const maxIdentifierLength = 190

// ErrInvalidServerID indicates that a capture-session identifier is empty or
// exceeds storage bounds.
var ErrInvalidServerID = errors.New("replay: invalid server id")

// ServerID represents a validated capture-session identifier. The value is
// opaque and supplied by the capture agent, never generated by the store.
type ServerID string

// NewServerID validates raw input and returns a ServerID.
func NewServerID(rawInput string) (ServerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidServerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidServerID, maxIdentifierLength)
	}
	return ServerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ServerID) String() string {
	return string(id)
}

// Server models one capture session. A row is created by the first
// server-start event or first frame seen for its id.
type Server struct {
	ServerID  string    `gorm:"column:server_id;primaryKey;size:190;not null"`
	PlaceID   int64     `gorm:"column:place_id"`
	CreatorID int64     `gorm:"column:creator_id"`
	GameName  string    `gorm:"column:game_name"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	LastFrame int64     `gorm:"column:last_frame;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Server) TableName() string {
	return "servers"
}

// Frame models one persisted snapshot. Rows are append-only: never updated,
// never deleted. The surrogate id records insertion order and breaks ties
// between duplicate frame numbers.
type Frame struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ServerID    string    `gorm:"column:server_id;size:190;not null;index:idx_server_frame,priority:1"`
	FrameNumber int64     `gorm:"column:frame_number;not null;index:idx_server_frame,priority:2"`
	Timestamp   float64   `gorm:"column:timestamp;not null"`
	PartsData   string    `gorm:"column:parts_data;type:text;not null"`
	PlayersData string    `gorm:"column:players_data;type:text;not null"`
	GameInfo    string    `gorm:"column:game_info;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Frame) TableName() string {
	return "frames"
}

// AppendRequest describes one frame submitted by a capture agent. Parts,
// Players and GameInfo are opaque payloads passed through verbatim; nil or
// empty values are normalized to an empty array / object.
type AppendRequest struct {
	ServerID    ServerID
	PlaceID     int64
	FrameNumber int64
	Timestamp   float64
	Parts       json.RawMessage
	Players     json.RawMessage
	GameInfo    json.RawMessage
}

// AppendResult reports what the store persisted for an append.
type AppendResult struct {
	FrameNumber int64
	FrameID     int64
}

// ServerSummary is the read model for session listings: one Server row
// annotated with the number of frames referencing it.
type ServerSummary struct {
	ServerID   string    `gorm:"column:server_id"`
	PlaceID    int64     `gorm:"column:place_id"`
	CreatorID  int64     `gorm:"column:creator_id"`
	GameName   string    `gorm:"column:game_name"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	LastFrame  int64     `gorm:"column:last_frame"`
	FrameCount int64     `gorm:"column:frame_count"`
}

// FrameRecord is the read model for playback: one Frame row with its payload
// blobs restored to structured JSON.
type FrameRecord struct {
	FrameNumber int64
	Timestamp   float64
	Parts       json.RawMessage
	Players     json.RawMessage
	GameInfo    json.RawMessage
}

// HealthSummary reports aggregate store counts for liveness checks.
type HealthSummary struct {
	Servers int64
	Frames  int64
}
