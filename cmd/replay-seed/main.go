package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/replayforge/backend/internal/config"
	"github.com/replayforge/backend/internal/database"
	"github.com/replayforge/backend/internal/logging"
	"github.com/replayforge/backend/internal/replay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type seedOptions struct {
	databasePath string
	frames       int
	parts        int
	players      int
	placeID      int64
	creatorID    int64
	gameName     string
}

func main() {
	opts := seedOptions{}

	rootCmd := &cobra.Command{
		Use:   "replay-seed",
		Short: "Generate a synthetic capture session with animated frame data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}

	defaults := config.NewViper()
	rootCmd.Flags().StringVar(&opts.databasePath, "database-path", defaults.GetString("database.path"), "SQLite database path")
	rootCmd.Flags().IntVar(&opts.frames, "frames", 100, "Number of frames to generate")
	rootCmd.Flags().IntVar(&opts.parts, "parts", 20, "Number of animated parts per frame")
	rootCmd.Flags().IntVar(&opts.players, "players", 3, "Number of players per frame")
	rootCmd.Flags().Int64Var(&opts.placeID, "place-id", 12345678, "Place id recorded for the session")
	rootCmd.Flags().Int64Var(&opts.creatorID, "creator-id", 87654321, "Creator id recorded for the session")
	rootCmd.Flags().StringVar(&opts.gameName, "game-name", "Test Game", "Game name recorded for the session")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSeed(ctx context.Context, opts seedOptions) error {
	logger, err := logging.NewLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(opts.databasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := replay.NewStore(replay.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	serverID, err := replay.NewServerID(fmt.Sprintf("test-server-%s", uuid.NewString()))
	if err != nil {
		return err
	}

	logger.Info("registering synthetic session",
		zap.String("server_id", serverID.String()),
		zap.Int("frames", opts.frames))

	if err := store.UpsertServer(ctx, serverID, opts.placeID, opts.creatorID, opts.gameName); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	playerBases := makePlayerBases(rng, opts.players)
	partBases := makePartBases(rng, opts.parts)

	gameInfo, err := json.Marshal(map[string]any{
		"PlaceId":   opts.placeID,
		"GameName":  opts.gameName,
		"CreatorId": opts.creatorID,
	})
	if err != nil {
		return err
	}

	// Synthetic clock advances at 10 FPS independent of generation speed.
	baseTimestamp := float64(time.Now().Unix())
	for frame := 0; frame < opts.frames; frame++ {
		parts, err := json.Marshal(animatedParts(partBases, frame))
		if err != nil {
			return err
		}
		players, err := json.Marshal(animatedPlayers(playerBases, frame))
		if err != nil {
			return err
		}

		_, err = store.AppendFrame(ctx, replay.AppendRequest{
			ServerID:    serverID,
			PlaceID:     opts.placeID,
			FrameNumber: int64(frame),
			Timestamp:   baseTimestamp + float64(frame)*0.1,
			Parts:       parts,
			Players:     players,
			GameInfo:    gameInfo,
		})
		if err != nil {
			return err
		}

		if frame%10 == 0 {
			logger.Info("generated frames", zap.Int("frame", frame), zap.Int("total", opts.frames))
		}
	}

	logger.Info("synthetic session complete",
		zap.String("server_id", serverID.String()),
		zap.Int("frames", opts.frames))
	return nil
}

type vector3 struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type color3 struct {
	R float64 `json:"R"`
	G float64 `json:"G"`
	B float64 `json:"B"`
}

type playerBase struct {
	Name         string
	UserID       int64
	BasePosition vector3
}

type partBase struct {
	Name         string
	FullPath     string
	BasePosition vector3
	BaseRotation vector3
	Size         vector3
	Material     string
	Color        color3
	Transparency float64
}

type playerSnapshot struct {
	Name     string  `json:"Name"`
	UserID   int64   `json:"UserId"`
	Position vector3 `json:"Position"`
}

type partSnapshot struct {
	Name         string  `json:"Name"`
	FullPath     string  `json:"FullPath"`
	Position     vector3 `json:"Position"`
	Rotation     vector3 `json:"Rotation"`
	Size         vector3 `json:"Size"`
	Material     string  `json:"Material"`
	Color        color3  `json:"Color"`
	Transparency float64 `json:"Transparency"`
}

func makePlayerBases(rng *rand.Rand, count int) []playerBase {
	bases := make([]playerBase, 0, count)
	for i := 0; i < count; i++ {
		bases = append(bases, playerBase{
			Name:         fmt.Sprintf("Player%d", i+1),
			UserID:       1000 + int64(i),
			BasePosition: randomPosition(rng),
		})
	}
	return bases
}

func makePartBases(rng *rand.Rand, count int) []partBase {
	materials := []string{"Plastic", "Wood", "Metal", "Neon"}
	bases := make([]partBase, 0, count+1)
	for i := 0; i < count; i++ {
		transparency := 0.0
		if rng.Float64() > 0.8 {
			transparency = rng.Float64() * 0.5
		}
		bases = append(bases, partBase{
			Name:         fmt.Sprintf("Part%d", i),
			FullPath:     fmt.Sprintf("Workspace.Part%d", i),
			BasePosition: randomPosition(rng),
			BaseRotation: vector3{X: rng.Float64() * 360, Y: rng.Float64() * 360, Z: rng.Float64() * 360},
			Size:         vector3{X: 1 + rng.Float64()*4, Y: 1 + rng.Float64()*4, Z: 1 + rng.Float64()*4},
			Material:     materials[rng.Intn(len(materials))],
			Color:        color3{R: rng.Float64(), G: rng.Float64(), B: rng.Float64()},
			Transparency: transparency,
		})
	}
	// A flat ground plane anchors the scene in the viewer.
	bases = append(bases, partBase{
		Name:     "Ground",
		FullPath: "Workspace.Ground",
		Size:     vector3{X: 100, Y: 1, Z: 100},
		Material: "Plastic",
		Color:    color3{R: 0.3, G: 0.7, B: 0.3},
	})
	return bases
}

func randomPosition(rng *rand.Rand) vector3 {
	return vector3{
		X: rng.Float64()*100 - 50,
		Y: rng.Float64() * 20,
		Z: rng.Float64()*100 - 50,
	}
}

func animatedPosition(base vector3, frame int) vector3 {
	const amplitude, frequency = 10.0, 0.02
	return vector3{
		X: base.X + amplitude*math.Sin(float64(frame)*frequency),
		Y: base.Y + amplitude*0.2*math.Sin(float64(frame)*frequency*2),
		Z: base.Z + amplitude*math.Cos(float64(frame)*frequency),
	}
}

func animatedRotation(base vector3, frame int) vector3 {
	const speed = 2.0
	return vector3{
		X: math.Mod(base.X+float64(frame)*speed, 360),
		Y: math.Mod(base.Y+float64(frame)*speed*0.5, 360),
		Z: math.Mod(base.Z+float64(frame)*speed*0.3, 360),
	}
}

func animatedPlayers(bases []playerBase, frame int) []playerSnapshot {
	players := make([]playerSnapshot, 0, len(bases))
	for _, base := range bases {
		players = append(players, playerSnapshot{
			Name:     base.Name,
			UserID:   base.UserID,
			Position: animatedPosition(base.BasePosition, frame),
		})
	}
	return players
}

func animatedParts(bases []partBase, frame int) []partSnapshot {
	parts := make([]partSnapshot, 0, len(bases))
	for _, base := range bases {
		parts = append(parts, partSnapshot{
			Name:         base.Name,
			FullPath:     base.FullPath,
			Position:     animatedPosition(base.BasePosition, frame),
			Rotation:     animatedRotation(base.BaseRotation, frame),
			Size:         base.Size,
			Material:     base.Material,
			Color:        base.Color,
			Transparency: base.Transparency,
		})
	}
	return parts
}
