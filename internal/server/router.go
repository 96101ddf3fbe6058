package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/replayforge/backend/internal/replay"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("frame store dependency required")

// Dependencies wires the ingestion/query facade to its collaborators.
type Dependencies struct {
	Store  *replay.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// NewHTTPHandler builds the replay API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		store:  deps.Store,
		clock:  clock,
		logger: logger,
	}

	api := router.Group("/api")
	api.POST("/record", handler.handleRecord)
	api.GET("/servers", handler.handleListServers)
	api.GET("/server/:id/frames", handler.handleListFrames)
	api.GET("/server/:id/frame/:n", handler.handleGetFrame)
	api.GET("/health", handler.handleHealth)

	router.GET("/", handler.handleViewer)

	return router, nil
}

// Capture agents post from game servers and the viewer is served from
// arbitrary origins, so the API stays fully open to cross-origin calls.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	store  *replay.Store
	clock  func() time.Time
	logger *zap.Logger
}

const eventTypeServerStart = "ServerStart"

type recordPayload struct {
	ServerID  string          `json:"ServerId"`
	Type      string          `json:"Type"`
	PlaceID   int64           `json:"PlaceId"`
	CreatorID int64           `json:"CreatorId"`
	GameName  string          `json:"GameName"`
	Frame     int64           `json:"Frame"`
	Timestamp *float64        `json:"Timestamp"`
	Parts     json.RawMessage `json:"Parts"`
	Players   json.RawMessage `json:"Players"`
	GameInfo  json.RawMessage `json:"GameInfo"`
}

type gameInfoFields struct {
	PlaceID int64 `json:"PlaceId"`
}

// handleRecord ingests one frame or one server-start event. The body is
// parsed as JSON regardless of the declared content type; a form-encoded
// body is accepted as a flat last-resort fallback, which cannot carry nested
// part or player data.
func (h *httpHandler) handleRecord(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	payload, ok := parseRecordPayload(body)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	serverID, err := replay.NewServerID(payload.ServerID)
	if err != nil {
		h.logger.Warn("record rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerId required"})
		return
	}

	ctx := c.Request.Context()

	if payload.Type == eventTypeServerStart {
		if err := h.store.UpsertServer(ctx, serverID, payload.PlaceID, payload.CreatorID, payload.GameName); err != nil {
			h.respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Server registered"})
		return
	}

	now := h.clock()
	timestamp := float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second)
	if payload.Timestamp != nil {
		timestamp = *payload.Timestamp
	}

	var info gameInfoFields
	if len(payload.GameInfo) > 0 {
		// Best effort; a malformed or absent PlaceId leaves the zero value.
		_ = json.Unmarshal(payload.GameInfo, &info)
	}

	result, err := h.store.AppendFrame(ctx, replay.AppendRequest{
		ServerID:    serverID,
		PlaceID:     info.PlaceID,
		FrameNumber: payload.Frame,
		Timestamp:   timestamp,
		Parts:       payload.Parts,
		Players:     payload.Players,
		GameInfo:    payload.GameInfo,
	})
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "frame": result.FrameNumber})
}

// parseRecordPayload decodes the request body: JSON first (whatever the
// declared content type was), then form-encoded key/value pairs.
func parseRecordPayload(body []byte) (recordPayload, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return recordPayload{}, false
	}

	var payload recordPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, true
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil || len(values) == 0 {
		return recordPayload{}, false
	}
	return payloadFromForm(values), true
}

func payloadFromForm(values url.Values) recordPayload {
	payload := recordPayload{
		ServerID: values.Get("ServerId"),
		Type:     values.Get("Type"),
		GameName: values.Get("GameName"),
	}
	payload.PlaceID, _ = strconv.ParseInt(values.Get("PlaceId"), 10, 64)
	payload.CreatorID, _ = strconv.ParseInt(values.Get("CreatorId"), 10, 64)
	payload.Frame, _ = strconv.ParseInt(values.Get("Frame"), 10, 64)
	if raw := values.Get("Timestamp"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			payload.Timestamp = &parsed
		}
	}
	return payload
}

type serverPayload struct {
	ServerID   string    `json:"server_id"`
	PlaceID    int64     `json:"place_id"`
	CreatorID  int64     `json:"creator_id"`
	GameName   string    `json:"game_name"`
	CreatedAt  time.Time `json:"created_at"`
	LastFrame  int64     `json:"last_frame"`
	FrameCount int64     `json:"frame_count"`
}

func (h *httpHandler) handleListServers(c *gin.Context) {
	summaries, err := h.store.ListServers(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	response := make([]serverPayload, 0, len(summaries))
	for _, summary := range summaries {
		response = append(response, serverPayload{
			ServerID:   summary.ServerID,
			PlaceID:    summary.PlaceID,
			CreatorID:  summary.CreatorID,
			GameName:   summary.GameName,
			CreatedAt:  summary.CreatedAt,
			LastFrame:  summary.LastFrame,
			FrameCount: summary.FrameCount,
		})
	}
	c.JSON(http.StatusOK, response)
}

type framePayload struct {
	Frame     int64           `json:"frame"`
	Timestamp float64         `json:"timestamp"`
	Parts     json.RawMessage `json:"parts"`
	Players   json.RawMessage `json:"players"`
	GameInfo  json.RawMessage `json:"gameInfo"`
}

func (h *httpHandler) handleListFrames(c *gin.Context) {
	serverID, err := replay.NewServerID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerId required"})
		return
	}

	records, err := h.store.ListFrames(c.Request.Context(), serverID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	response := make([]framePayload, 0, len(records))
	for _, record := range records {
		response = append(response, toFramePayload(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetFrame(c *gin.Context) {
	serverID, err := replay.NewServerID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerId required"})
		return
	}

	frameNumber, err := strconv.ParseInt(c.Param("n"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Frame not found"})
		return
	}

	record, err := h.store.GetFrame(c.Request.Context(), serverID, frameNumber)
	if errors.Is(err, replay.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Frame not found"})
		return
	}
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, toFramePayload(record))
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	summary, err := h.store.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"servers":  summary.Servers,
		"frames":   summary.Frames,
	})
}

func toFramePayload(record replay.FrameRecord) framePayload {
	return framePayload{
		Frame:     record.FrameNumber,
		Timestamp: record.Timestamp,
		Parts:     record.Parts,
		Players:   record.Players,
		GameInfo:  record.GameInfo,
	}
}

func (h *httpHandler) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, replay.ErrSchemaHealed) {
		h.logger.Warn("request failed against missing schema", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database reinitialized, please retry"})
		return
	}
	h.logger.Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
