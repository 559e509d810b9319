// Command sapling-cli runs a live voice session from the terminal, using the
// local microphone and speakers through ffmpeg. Tokens come from a running
// saplingd instance.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/grovesolutions/sapling-live/adapters/ffaudio"
	"github.com/grovesolutions/sapling-live/adapters/gemini"
	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/internal/api"
	"github.com/grovesolutions/sapling-live/internal/session"
)

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("SERVER_URL", "http://localhost:8080"), "saplingd base URL")
	clientID := flag.String("client", envOr("CLIENT_ID", "sapling-cli"), "client identifier")
	clientSecret := flag.String("secret", os.Getenv("CLIENT_SECRET"), "shared client secret")
	voice := flag.String("voice", "", "voice name (server default when empty)")
	systemInstruction := flag.String("system", "", "system instruction for the session")
	flag.Parse()

	if *clientSecret == "" {
		fmt.Fprintln(os.Stderr, "CLIENT_SECRET is required (flag -secret or environment)")
		os.Exit(1)
	}

	// Keep the terminal readable; warnings and errors still surface.
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	logger, _ := logCfg.Build()
	defer logger.Sync()

	if err := run(*serverURL, *clientID, *clientSecret, *voice, *systemInstruction, logger); err != nil {
		fmt.Fprintf(os.Stderr, "sapling-cli: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(serverURL, clientID, clientSecret, voice, systemInstruction string, logger *zap.Logger) error {
	ctx := context.Background()

	apiClient := api.NewClient(serverURL)
	if err := apiClient.Authenticate(ctx, clientID, clientSecret); err != nil {
		return fmt.Errorf("authenticate with server: %w", err)
	}

	sink, err := ffaudio.NewSink()
	if err != nil {
		return err
	}

	ctrl := session.NewController(session.Dependencies{
		Credentials: apiClient,
		Dialer:      gemini.NewDialer(logger),
		Capture:     ffaudio.NewOpener(),
		Playback:    sink,
	}, logger)
	defer ctrl.Dispose()

	snapshots, cancel := ctrl.Subscribe()
	defer cancel()
	go printUpdates(snapshots)

	fmt.Println("Commands: /connect, /disconnect, /rec, /stoprec, /stop, /clear, /history, /quit.")
	fmt.Println("Anything else is sent as a text turn.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/connect":
			connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
			err := ctrl.Connect(connectCtx, session.Config{
				SystemInstruction: systemInstruction,
				VoiceName:         voice,
			})
			cancelConnect()
			if err != nil {
				fmt.Printf("connect failed: %v\n", err)
			}
		case "/disconnect":
			ctrl.Disconnect()
		case "/rec":
			if err := ctrl.StartRecording(ctx); err != nil {
				fmt.Printf("recording failed: %v\n", err)
			}
		case "/stoprec":
			ctrl.StopRecording()
		case "/stop":
			ctrl.StopAudio()
		case "/clear":
			ctrl.ClearMessages()
		case "/history":
			printHistory(ctx, apiClient)
		case "/quit", "/exit":
			ctrl.Disconnect()
			return nil
		default:
			ctrl.SendText(line)
		}
	}
}

// printUpdates renders new transcript entries and state transitions as the
// controller publishes them.
func printUpdates(snapshots <-chan session.Snapshot) {
	var printed int
	var lastStatus session.Status
	var lastErr string

	for snap := range snapshots {
		if snap.Status != lastStatus {
			fmt.Printf("\n[%s]\n> ", snap.Status)
			lastStatus = snap.Status
		}
		if snap.Error != "" && snap.Error != lastErr {
			fmt.Printf("\n[error] %s\n> ", snap.Error)
		}
		lastErr = snap.Error

		if len(snap.Transcript) < printed {
			printed = 0 // transcript was cleared
		}
		for _, entry := range snap.Transcript[printed:] {
			fmt.Printf("\n[%s] %s\n> ", entry.Role, entry.Content)
		}
		printed = len(snap.Transcript)
	}
}

func printHistory(ctx context.Context, apiClient *api.Client) {
	conversations, err := apiClient.Conversations(ctx)
	if err != nil {
		fmt.Printf("history failed: %v\n", err)
		return
	}
	if len(conversations) == 0 {
		fmt.Println("no stored conversations")
		return
	}
	for _, conv := range conversations {
		fmt.Printf("-- %s (%s, %d entries)\n",
			conv.StartedAt.Format(time.RFC3339), conv.VoiceName, len(conv.Entries))
		for _, entry := range conv.Entries {
			if entry.Role == entities.RoleUser || entry.Role == entities.RoleAssistant {
				fmt.Printf("   [%s] %s\n", entry.Role, entry.Content)
			}
		}
	}
}
