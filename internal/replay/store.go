package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew    = "replay.store.new"
	opEnsureReady = "replay.ensure_ready"
	opUpsert      = "replay.upsert_server"
	opTouch       = "replay.touch_server"
	opAppend      = "replay.append_frame"
	opListServers = "replay.list_servers"
	opListFrames  = "replay.list_frames"
	opGetFrame    = "replay.get_frame"
	opHealth      = "replay.health_summary"
)

// StoreConfig describes the dependencies required by the frame store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store is the durable persistence layer for capture sessions and frames.
// It holds no in-memory session or frame state: every operation reads and
// writes through the database, which is what allows the schema self-healing
// path to observe an externally reset datastore.
type Store struct {
	db       *gorm.DB
	clock    func() time.Time
	logger   *zap.Logger
	schemaMu sync.Mutex
}

// NewStore constructs the frame store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// EnsureReady verifies that both entity tables and the composite
// (server_id, frame_number) index exist, creating whatever is missing. It is
// idempotent and safe to call concurrently.
func (s *Store) EnsureReady(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if err := s.db.WithContext(ctx).AutoMigrate(&Server{}, &Frame{}); err != nil {
		s.logError(opEnsureReady, "migrate_failed", err)
		return newStoreError(opEnsureReady, "migrate_failed", err)
	}
	return nil
}

// UpsertServer inserts a session row or replaces the mutable metadata of an
// existing one. CreatedAt and LastFrame are preserved on replacement.
func (s *Store) UpsertServer(ctx context.Context, serverID ServerID, placeID, creatorID int64, gameName string) error {
	if gameName == "" {
		gameName = DefaultGameName
	}
	server := Server{
		ServerID:  serverID.String(),
		PlaceID:   placeID,
		CreatorID: creatorID,
		GameName:  gameName,
		CreatedAt: s.clock().UTC(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"place_id", "creator_id", "game_name"}),
	}).Create(&server).Error
	if err != nil {
		return s.failure(ctx, opUpsert, "write_failed", err, zap.String("server_id", serverID.String()))
	}
	return nil
}

// TouchServerIfAbsent inserts a session row with placeholder metadata only if
// no row exists for the id. Metadata established by an earlier explicit
// server-start is left untouched.
func (s *Store) TouchServerIfAbsent(ctx context.Context, serverID ServerID, placeID int64) error {
	err := s.touchServerIfAbsent(s.db.WithContext(ctx), serverID, placeID)
	if err != nil {
		return s.failure(ctx, opTouch, "write_failed", err, zap.String("server_id", serverID.String()))
	}
	return nil
}

func (s *Store) touchServerIfAbsent(tx *gorm.DB, serverID ServerID, placeID int64) error {
	server := Server{
		ServerID:  serverID.String(),
		PlaceID:   placeID,
		CreatorID: 0,
		GameName:  DefaultGameName,
		CreatedAt: s.clock().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoNothing: true,
	}).Create(&server).Error
}

// AppendFrame persists one immutable frame and moves the owning session's
// last-frame pointer to the submitted frame number. The pointer assignment is
// last-write-wins, not a running maximum: a lower frame number arriving after
// a higher one moves the pointer backward. A session row is created with
// placeholder metadata if none exists yet. All three writes happen in one
// transaction; a failed append leaves no partial state behind.
func (s *Store) AppendFrame(ctx context.Context, request AppendRequest) (AppendResult, error) {
	frame := Frame{
		ServerID:    request.ServerID.String(),
		FrameNumber: request.FrameNumber,
		Timestamp:   request.Timestamp,
		PartsData:   normalizeArray(request.Parts),
		PlayersData: normalizeArray(request.Players),
		GameInfo:    normalizeObject(request.GameInfo),
		CreatedAt:   s.clock().UTC(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touchServerIfAbsent(tx, request.ServerID, request.PlaceID); err != nil {
			return err
		}
		if err := tx.Create(&frame).Error; err != nil {
			return err
		}
		return tx.Model(&Server{}).
			Where("server_id = ?", request.ServerID.String()).
			Update("last_frame", request.FrameNumber).Error
	})
	if txErr != nil {
		return AppendResult{}, s.failure(ctx, opAppend, "write_failed", txErr,
			zap.String("server_id", request.ServerID.String()),
			zap.Int64("frame_number", request.FrameNumber))
	}

	return AppendResult{FrameNumber: frame.FrameNumber, FrameID: frame.ID}, nil
}

// ListServers returns every session, newest first, annotated with its frame
// count. Duplicate frame numbers each count once.
func (s *Store) ListServers(ctx context.Context) ([]ServerSummary, error) {
	var summaries []ServerSummary
	err := s.db.WithContext(ctx).Model(&Server{}).
		Select("servers.server_id, servers.place_id, servers.creator_id, servers.game_name, servers.created_at, servers.last_frame, COUNT(frames.id) AS frame_count").
		Joins("LEFT JOIN frames ON frames.server_id = servers.server_id").
		Group("servers.server_id").
		Order("servers.created_at DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, s.failure(ctx, opListServers, "query_failed", err)
	}
	if summaries == nil {
		summaries = []ServerSummary{}
	}
	return summaries, nil
}

// ListFrames returns every frame for the session in strictly ascending
// frame-number order, regardless of insertion order. Duplicate frame numbers
// appear in insertion order.
func (s *Store) ListFrames(ctx context.Context, serverID ServerID) ([]FrameRecord, error) {
	var frames []Frame
	err := s.db.WithContext(ctx).
		Where("server_id = ?", serverID.String()).
		Order("frame_number ASC, id ASC").
		Find(&frames).Error
	if err != nil {
		return nil, s.failure(ctx, opListFrames, "query_failed", err, zap.String("server_id", serverID.String()))
	}

	records := make([]FrameRecord, 0, len(frames))
	for _, frame := range frames {
		records = append(records, toRecord(frame))
	}
	return records, nil
}

// GetFrame returns the single frame matching (server_id, frame_number), or
// ErrNotFound. When duplicates exist for the key, the first-inserted row
// (lowest surrogate id) wins.
func (s *Store) GetFrame(ctx context.Context, serverID ServerID, frameNumber int64) (FrameRecord, error) {
	var frame Frame
	err := s.db.WithContext(ctx).
		Where("server_id = ? AND frame_number = ?", serverID.String(), frameNumber).
		Order("id ASC").
		First(&frame).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FrameRecord{}, fmt.Errorf("%w: server %s frame %d", ErrNotFound, serverID.String(), frameNumber)
	}
	if err != nil {
		return FrameRecord{}, s.failure(ctx, opGetFrame, "query_failed", err,
			zap.String("server_id", serverID.String()),
			zap.Int64("frame_number", frameNumber))
	}
	return toRecord(frame), nil
}

// Health re-checks the schema and returns aggregate entity counts.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return HealthSummary{}, err
	}

	var summary HealthSummary
	if err := s.db.WithContext(ctx).Model(&Server{}).Count(&summary.Servers).Error; err != nil {
		return HealthSummary{}, s.failure(ctx, opHealth, "server_count_failed", err)
	}
	if err := s.db.WithContext(ctx).Model(&Frame{}).Count(&summary.Frames).Error; err != nil {
		return HealthSummary{}, s.failure(ctx, opHealth, "frame_count_failed", err)
	}
	return summary, nil
}

// failure classifies a persistence error. A missing-schema signature triggers
// one reinitialization attempt and reports the request as retryable; anything
// else wraps into a coded StoreError.
func (s *Store) failure(ctx context.Context, operation, reason string, err error, fields ...zap.Field) error {
	if isSchemaMissing(err) {
		if healErr := s.EnsureReady(ctx); healErr != nil {
			s.logError(operation, "schema_heal_failed", healErr, fields...)
			return newStoreError(operation, "schema_heal_failed", healErr)
		}
		s.logger.Warn("schema was missing and has been reinitialized",
			zap.String("operation", operation), zap.Error(err))
		return fmt.Errorf("%s: %w", operation, ErrSchemaHealed)
	}
	s.logError(operation, reason, err, fields...)
	return newStoreError(operation, reason, err)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("frame store error", attrs...)
}

func toRecord(frame Frame) FrameRecord {
	return FrameRecord{
		FrameNumber: frame.FrameNumber,
		Timestamp:   frame.Timestamp,
		Parts:       json.RawMessage(frame.PartsData),
		Players:     json.RawMessage(frame.PlayersData),
		GameInfo:    json.RawMessage(frame.GameInfo),
	}
}

func normalizeArray(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}

func normalizeObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
