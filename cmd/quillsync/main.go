package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillhq/quillsync/internal/client"
	"github.com/quillhq/quillsync/internal/client/auth"
	"github.com/quillhq/quillsync/internal/client/storage/boltdb"
	"github.com/quillhq/quillsync/pkg/protocol"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "ws://localhost:8080/realtime", "Collaboration server websocket URL")
	apiURL := flag.String("api", "http://localhost:8080", "REST API base URL")
	dbPath := flag.String("db", "quillsync.db", "Path to local database")
	userID := flag.String("user", "", "User id to present to collaborators")
	courseID := flag.String("course", "", "Course room to join after connecting")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	token := os.Getenv("QUILLSYNC_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "QUILLSYNC_TOKEN environment variable is required")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()

	store, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	c, err := client.New(client.Config{
		ServerURL:   *serverURL,
		APIBaseURL:  *apiURL,
		UserID:      *userID,
		TokenSource: auth.NewStaticTokenSource(token),
		Logger:      logger,
	}, client.Storages{
		Actions:  store,
		Cache:    store,
		Metadata: store,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close client", "error", err)
		}
	}()

	// print everything the server pushes at us
	for _, event := range []protocol.EventType{
		protocol.EventUserJoined,
		protocol.EventUserLeft,
		protocol.EventPresenceUpdate,
		protocol.EventContentChange,
		protocol.EventCursorPosition,
		protocol.EventSelectionChange,
		protocol.EventNotification,
		protocol.EventActivityUpdate,
	} {
		event := event
		c.On(event, func(payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Error("failed to render event", "event", event, "error", err)
				return
			}
			fmt.Printf("%s %s\n", event, data)
		})
	}
	c.On(protocol.EventConnectionState, func(payload any) {
		change, ok := payload.(*protocol.ConnectionStateChange)
		if !ok {
			return
		}
		logger.Info("connection state changed", "state", change.State, "attempts", change.Attempts)
	})

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}

	if *courseID != "" {
		c.JoinCourse(*courseID)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if *courseID != "" {
		c.LeaveCourse(*courseID)
	}
	logger.Info("shutting down")
}

func printVersion() {
	fmt.Printf("QuillSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
