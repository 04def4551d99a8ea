package main

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/jessecrossen/jackpatch/internal/logger"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
	"github.com/jessecrossen/jackpatch/sdk/jackpatch"
)

func main() {
	log := logger.NewZapLogger()

	client, err := jackpatch.NewPatchClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithClientName("superduper"),
		contracts.WithDriver(jackpatch.DriverSim),
	)
	if err != nil {
		log.Error("Failed to create patch client", log.Field().Error("error", err))
		return
	}
	if err := client.Open(); err != nil {
		log.Error("Failed to open patch client", log.Field().Error("error", err))
		return
	}
	defer client.Close()

	midiOut, err := client.RegisterPort("midi_out", contracts.Output)
	if err != nil {
		log.Error("Failed to register output port", log.Field().Error("error", err))
		return
	}
	midiIn, err := client.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		log.Error("Failed to register input port", log.Field().Error("error", err))
		return
	}
	if err := client.Connect(midiOut, midiIn); err != nil {
		log.Error("Failed to connect ports", log.Field().Error("error", err))
		return
	}

	// A note-on right away and its note-off half a second later.
	if err := client.Send(midiOut, []byte(midi.NoteOn(0, 36, 127)), 0); err != nil {
		log.Error("Failed to send note-on", log.Field().Error("error", err))
		return
	}
	if err := client.Send(midiOut, []byte(midi.NoteOff(0, 36)), 500*time.Millisecond); err != nil {
		log.Error("Failed to send note-off", log.Field().Error("error", err))
		return
	}

	fmt.Println("Polling for events...")
	received := 0
	deadline := time.Now().Add(2 * time.Second)
	for received < 2 && time.Now().Before(deadline) {
		ev, ok, err := client.Receive(midiIn)
		if err != nil {
			log.Error("Receive failed", log.Field().Error("error", err))
			return
		}
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		received++
		fmt.Printf("event %d: % X at %.4fs\n", received, ev.Data, ev.CapturedAt)
	}

	stats := client.Stats()
	log.Info("Done",
		log.Field().Uint64("outgoingDropped", stats.OutgoingDropped),
		log.Field().Uint64("incomingDropped", stats.IncomingDropped))
}
