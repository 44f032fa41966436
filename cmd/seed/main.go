package main

import (
	"context"
	"flag"
	"fmt"
	"masbaha/internal/app"
	"masbaha/internal/config"
	"masbaha/internal/model"
	"time"

	"github.com/rs/zerolog/log"
)

// seed creates a demo room straight through the engine, bypassing HTTP
func main() {
	name := flag.String("name", "Evening dhikr", "room name")
	phrase := flag.String("phrase", "", "phrase shown to participants (default phrase when empty)")
	target := flag.Int("target", 100, "target count, 0 for open ended")
	code := flag.String("code", "", "room code, generated when empty")
	participants := flag.Int("participants", 3, "demo participants to join")
	taps := flag.Int("taps", 10, "taps per demo participant")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	app.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer a.Close()

	device, err := a.AuthService.IssueDeviceToken()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue device token")
	}

	room, err := a.RoomService.Create(ctx, device.DeviceID, &model.CreateRoomInput{
		Code:        *code,
		Name:        *name,
		Phrase:      *phrase,
		TargetCount: *target,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create room")
	}

	for i := 1; i <= *participants; i++ {
		p, err := a.RoomService.Join(ctx, room.Code, fmt.Sprintf("Guest %d", i))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to join")
		}
		for j := 0; j < *taps*i; j++ {
			r, err := a.RoomService.Tap(ctx, room.Code, p.ID)
			if r != nil {
				room = r
			}
			if err != nil {
				break
			}
		}
	}

	fmt.Printf("Room code:    %s\n", room.Code)
	fmt.Printf("Total:        %d / %d (completed=%v)\n", room.TotalCount, room.TargetCount, room.IsCompleted)
	fmt.Printf("Owner token:  %s\n", device.Token)
}
