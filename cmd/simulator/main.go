package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/syncclient"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

type env struct {
	apiURL    string
	devSecret string
	issuer    string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	e := env{
		apiURL:    "http://localhost:8080",
		devSecret: os.Getenv("AUTH_DEV_SECRET"),
		issuer:    os.Getenv("AUTH_ISSUER"),
	}
	if envURL := os.Getenv("API_URL"); envURL != "" {
		e.apiURL = envURL
	}

	command := os.Args[1]
	args := os.Args[2:]

	if command != "help" && command != "-h" && command != "--help" && e.devSecret == "" {
		fmt.Println("Error: AUTH_DEV_SECRET must match the server's dev secret")
		os.Exit(1)
	}

	switch command {
	case "full":
		fullCmd(e, args)
	case "populate":
		populateCmd(e, args)
	case "watch":
		watchCmd(e, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Room Simulator - Development tool for triangulation rooms

USAGE:
  simulator <command> [options]

COMMANDS:
  full      Create a room with fake cuppers and play one round end to end
  populate  Add fake cuppers to an existing room
  watch     Join a room and print its realtime events
  help      Show this help message

ENVIRONMENT:
  API_URL          Backend API URL (default: http://localhost:8080)
  AUTH_DEV_SECRET  Dev token secret configured on the server
  AUTH_ISSUER      Token issuer, if the server checks one

EXAMPLES:
  # Play a round with 4 fake cuppers
  simulator full --players=4

  # Leave the room waiting so you can join and start it yourself
  simulator full --players=3 --no-play

  # Add 5 cuppers to an existing room
  simulator populate --room=K7M2PQ --count=5

  # Follow a room's events
  simulator watch --room=K7M2PQ`)
}

func fail(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func fullCmd(e env, args []string) {
	fs := flag.NewFlagSet("full", flag.ExitOnError)
	players := fs.Int("players", 3, "Number of fake cuppers besides the host")
	accuracy := fs.Float64("accuracy", 0.7, "Chance each cupper picks the odd cup correctly (0-1)")
	timer := fs.Int("timer", 2, "Round timer in minutes")
	noPlay := fs.Bool("no-play", false, "Stop after the room is populated and a set exists")
	fs.Parse(args)

	if *players < 1 || *players > 20 {
		fail("Error: --players must be between 1 and 20")
	}
	if *accuracy < 0 || *accuracy > 1 {
		fail("Error: --accuracy must be between 0 and 1")
	}

	client := NewAPIClient(e.apiURL, e.devSecret, e.issuer)

	fmt.Println("=== Room Simulator: Full Round ===")
	fmt.Println()

	fmt.Print("Creating host and room... ")
	host, err := client.NewUser("host")
	if err != nil {
		fail("FAILED\n  Error: %v", err)
	}
	room, err := client.CreateRoom(host.Token, "Simulated cupping", *timer)
	if err != nil {
		fail("FAILED\n  Error: %v", err)
	}
	fmt.Printf("OK (code: %s)\n", room.Code)

	for _, name := range []string{"Kenya AA", "Colombia Huila", "Ethiopia Guji"} {
		if err := client.AddCoffee(host.Token, room.ID, name); err != nil {
			fail("Failed to add coffee %s: %v", name, err)
		}
	}
	set, err := client.GenerateSet(host.Token, room.ID)
	if err != nil {
		fail("Failed to generate set: %v", err)
	}
	fmt.Printf("  Set %d generated\n", set.Number)

	fmt.Println()
	fmt.Printf("Adding %d cuppers:\n", *players)
	cuppers := make([]*FakeUser, 0, *players)
	for i := 1; i <= *players; i++ {
		user, err := client.NewUser(fmt.Sprintf("cupper%d", i))
		if err != nil {
			fail("  [%d/%d] FAILED to create user: %v", i, *players, err)
		}
		if _, err := client.JoinRoom(user.Token, room.Code); err != nil {
			fail("  [%d/%d] FAILED to join room: %v", i, *players, err)
		}
		cuppers = append(cuppers, user)
		fmt.Printf("  [%d/%d] %s joined\n", i, *players, user.Profile.DisplayName())
	}

	if *noPlay {
		fmt.Println()
		fmt.Println("=========================================")
		fmt.Println("  ROOM READY")
		fmt.Println("=========================================")
		fmt.Printf("  Room code: %s\n", room.Code)
		fmt.Printf("  Set ID:    %s\n", set.ID)
		fmt.Println()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The host listens for the automatic transition out of the countdown.
	rt := syncclient.New(syncclient.Options{URL: realtimeURL(e.apiURL), Token: host.Token, Logger: quietLogger()})
	rt.Subscribe(websocket.RoomChannel(room.ID))
	go rt.Run(ctx)

	fmt.Println()
	fmt.Print("Starting round... ")
	round, err := client.StartRound(host.Token, room.ID, set.ID)
	if err != nil {
		fail("FAILED\n  Error: %v", err)
	}
	fmt.Printf("OK (round %d, waiting for countdown)\n", round.RoundNumber)

	if err := waitForEvent(ctx, rt, websocket.EventGamePlaying, time.Minute); err != nil {
		fail("Round never started: %v", err)
	}
	fmt.Printf("  Playing (server clock offset %s)\n", rt.Clock().Offset().Round(time.Millisecond))

	fmt.Println()
	fmt.Println("Submitting answers:")
	for _, user := range cuppers {
		answers := simulateAnswers(set, *accuracy)
		result, err := client.SubmitAnswers(user.Token, room.ID, round.ID, answers)
		if err != nil {
			fail("  %s FAILED: %v", user.Profile.DisplayName(), err)
		}
		fmt.Printf("  %-24s %d/%d\n", user.Profile.DisplayName(), result.CorrectCount, result.TotalCount)
		time.Sleep(time.Duration(200+rand.IntN(400)) * time.Millisecond)
	}

	results, err := client.EndRound(host.Token, room.ID)
	if err != nil {
		fail("Failed to end round: %v", err)
	}

	fmt.Println()
	fmt.Println("=========================================")
	fmt.Println("  RESULTS")
	fmt.Println("=========================================")
	names := make(map[uuid.UUID]string, len(cuppers))
	for _, u := range cuppers {
		names[u.Profile.ID] = u.Profile.DisplayName()
	}
	for i, r := range results.Results {
		fmt.Printf("  %d. %-24s %d/%d in %.1fs\n", i+1, names[r.ProfileID], r.CorrectCount, r.TotalCount, float64(r.ElapsedMs)/1000)
	}
	fmt.Println()
}

// simulateAnswers answers from the host's view of the set, missing rows at
// the given rate.
func simulateAnswers(set *service.SetView, accuracy float64) []domain.AnswerInput {
	answers := make([]domain.AnswerInput, 0, len(set.Rows))
	for i, row := range set.Rows {
		pos := 1 + rand.IntN(domain.CupsPerRow)
		if row.OddPosition != nil {
			pos = *row.OddPosition
			if rand.Float64() >= accuracy {
				pos = pos%domain.CupsPerRow + 1
			}
		}
		answers = append(answers, domain.AnswerInput{
			RowNumber:        row.RowNumber,
			SelectedPosition: pos,
			AnsweredAtMs:     int64(i+1) * int64(5000+rand.IntN(5000)),
		})
	}
	return answers
}

func populateCmd(e env, args []string) {
	fs := flag.NewFlagSet("populate", flag.ExitOnError)
	code := fs.String("room", "", "Room code (required)")
	count := fs.Int("count", 3, "Number of fake cuppers to add")
	fs.Parse(args)

	if *code == "" {
		fail("Error: --room is required")
	}

	client := NewAPIClient(e.apiURL, e.devSecret, e.issuer)

	fmt.Printf("Adding %d cuppers to room %s:\n", *count, strings.ToUpper(*code))
	for i := 1; i <= *count; i++ {
		user, err := client.NewUser(fmt.Sprintf("cupper%d", i))
		if err != nil {
			fail("  [%d/%d] FAILED to create user: %v", i, *count, err)
		}
		if _, err := client.JoinRoom(user.Token, *code); err != nil {
			fail("  [%d/%d] FAILED to join: %v", i, *count, err)
		}
		fmt.Printf("  [%d/%d] %s joined\n", i, *count, user.Profile.DisplayName())
	}
}

func watchCmd(e env, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	code := fs.String("room", "", "Room code (required)")
	fs.Parse(args)

	if *code == "" {
		fail("Error: --room is required")
	}

	client := NewAPIClient(e.apiURL, e.devSecret, e.issuer)
	user, err := client.NewUser("watcher")
	if err != nil {
		fail("Failed to create watcher: %v", err)
	}
	room, err := client.JoinRoom(user.Token, *code)
	if err != nil {
		fail("Failed to join room: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt := syncclient.New(syncclient.Options{URL: realtimeURL(e.apiURL), Token: user.Token, Logger: quietLogger()})
	rt.Subscribe(websocket.RoomChannel(room.ID))

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	fmt.Printf("Watching %s (%s). Ctrl-C to stop.\n", room.Name, room.Code)
	for msg := range rt.Events() {
		switch msg.Type {
		case websocket.MessageTypeEvent:
			fmt.Printf("%s  %-24s %s\n", rt.Clock().Now().Format("15:04:05.000"), msg.Event, compact(msg.Payload))
		case websocket.MessageTypeError:
			fmt.Printf("error: %s\n", compact(msg.Payload))
		}
	}
	if err := <-done; err != nil {
		fail("Realtime connection failed: %v", err)
	}
}

func waitForEvent(ctx context.Context, c *syncclient.Client, event string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.Events():
			if !ok {
				return fmt.Errorf("connection closed")
			}
			if msg.Type == websocket.MessageTypeEvent && msg.Event == event {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timed out after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func realtimeURL(apiURL string) string {
	return "ws" + strings.TrimPrefix(apiURL, "http") + "/api/v1/realtime"
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
