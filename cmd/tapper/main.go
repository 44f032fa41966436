package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"masbaha/internal/app"
	"masbaha/internal/client"
	"masbaha/internal/model"
	"masbaha/internal/observer"
	"masbaha/internal/service"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

const usage = `commands:
  <enter>          tap
  bulk <id> <n>    adjust a participant by n (owner)
  target <n>       change the target (owner)
  reset            reset the room (owner)
  alert <text>     broadcast a message (owner)
  who              show the roster
  quit             leave the room`

// tapper joins a room as a participant and keeps a live view of it
func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	code := flag.String("room", "", "room code to join")
	name := flag.String("name", "", "participant name")
	token := flag.String("token", "", "device token (owner commands need the creating device's token)")
	create := flag.String("create", "", "create a room with this name instead of joining one")
	target := flag.Int("target", 0, "target for -create")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	app.SetupLogging(level, "console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(*server)
	if *token != "" {
		api.SetToken(*token)
	}

	if *create != "" {
		if *token == "" {
			dev, err := api.RegisterDevice(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to register device")
			}
			fmt.Printf("device token: %s\n", dev.Token)
		}
		room, err := api.CreateRoom(ctx, &model.CreateRoomInput{Name: *create, TargetCount: *target})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create room")
		}
		*code = room.Code
		fmt.Printf("created room %s\n", room.Code)
	}
	if *code == "" || strings.TrimSpace(*name) == "" {
		flag.Usage()
		os.Exit(2)
	}

	me, err := api.Join(ctx, *code, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to join")
	}
	defer api.Leave(context.Background(), *code, me.ID)

	obs := observer.New(api, api, observer.Config{
		Code:          *code,
		ParticipantID: me.ID,
		OnComplete: func(room *model.Room) {
			fmt.Printf("\a*** target reached: %d / %d ***\n", room.TotalCount, room.TargetCount)
		},
		OnAlert: func(ev *model.Event) {
			fmt.Printf("\a[owner] %s\n", ev.Message)
		},
		OnClosed: func() {
			fmt.Println("room closed")
			stop()
		},
	})
	if err := obs.Refresh(ctx); err != nil {
		log.Error().Err(err).Str("room_code", *code).Msg("failed to load room")
		return
	}
	go obs.Run(ctx)

	fmt.Printf("joined %s as %s (%s)\n%s\n", *code, me.Name, me.ID, usage)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := run(ctx, api, obs, *code, line); quit {
				return
			}
		}
	}
}

func run(ctx context.Context, api *client.Client, obs *observer.Observer, code, line string) bool {
	fields := strings.Fields(line)
	var (
		room *model.Room
		err  error
	)

	switch {
	case len(fields) == 0:
		room, err = obs.Tap(ctx)
	case fields[0] == "quit":
		return true
	case fields[0] == "who":
		printRoster(obs.State())
		return false
	case fields[0] == "reset":
		room, err = obs.Reset(ctx)
	case fields[0] == "target" && len(fields) == 2:
		n, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			fmt.Println("target must be a number")
			return false
		}
		room, err = obs.UpdateTarget(ctx, n)
	case fields[0] == "bulk" && len(fields) == 3:
		n, convErr := strconv.Atoi(fields[2])
		if convErr != nil {
			fmt.Println("amount must be a number")
			return false
		}
		room, err = obs.BulkAdjust(ctx, fields[1], n)
	case fields[0] == "alert" && len(fields) > 1:
		err = api.SendAlert(ctx, code, strings.Join(fields[1:], " "))
	default:
		fmt.Println(usage)
		return false
	}

	switch {
	case errors.Is(err, service.ErrAlreadyCompleted):
		fmt.Println("room already completed")
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrInvalidToken):
		fmt.Println("only the room owner can do that")
	case err != nil:
		fmt.Printf("failed: %v\n", err)
	case room != nil:
		fmt.Printf("%d / %s\n", room.TotalCount, targetLabel(room.TargetCount))
	}
	return false
}

func printRoster(state *model.RoomState) {
	if state == nil {
		fmt.Println("no state yet")
		return
	}
	fmt.Printf("%s  %q  %d / %s\n", state.Room.Name, state.Room.Phrase, state.Room.TotalCount, targetLabel(state.Room.TargetCount))
	for _, p := range state.Participants {
		fmt.Printf("  %-20s %6d  %s\n", p.Name, p.PersonalCount, p.ID)
	}
}

func targetLabel(target int) string {
	if target == 0 {
		return "∞"
	}
	return strconv.Itoa(target)
}
