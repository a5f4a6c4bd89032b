package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

var (
	liveAudioFile string
	liveEvent     string
	liveLocation  string
	liveCity      string
	liveChunkMs   int
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run a live capture session from this terminal",
	Long: `Open a live session against the server, stream raw PCM audio
(16 kHz, s16le mono) from a file or stdin, and print the events the
server emits: transcript fragments, insight updates, identity matches
and the final record.

Mostly useful for testing a deployment without a capture device.

Examples:
  fieldnotes live --user alice --audio sample.pcm --event "GopherCon"
  arecord -f S16_LE -r 16000 -c 1 | fieldnotes live --user alice --audio -`,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().StringVarP(&liveAudioFile, "audio", "a", "", "raw PCM file to stream, or '-' for stdin")
	liveCmd.Flags().StringVar(&liveEvent, "event", "", "event name for the session context")
	liveCmd.Flags().StringVar(&liveLocation, "location", "", "location name")
	liveCmd.Flags().StringVar(&liveCity, "city", "", "city")
	liveCmd.Flags().IntVar(&liveChunkMs, "chunk-ms", 250, "audio chunk size in milliseconds")

	_ = liveCmd.MarkFlagRequired("audio")
}

func runLive(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	var audio io.Reader
	if liveAudioFile == "-" {
		audio = os.Stdin
	} else {
		f, err := os.Open(liveAudioFile)
		if err != nil {
			return fmt.Errorf("open audio file: %w", err)
		}
		defer f.Close()
		audio = f
	}

	sctx := models.SessionContext{
		Event: liveEvent,
		Location: models.Location{
			Name: liveLocation,
			City: liveCity,
		},
	}

	ctx := context.Background()
	sess, err := apiClient.OpenLive(ctx, "", userID, sctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = sess.Close() }()

	fmt.Printf("Session %s started\n", sess.SessionID())

	// Drain events concurrently while audio streams.
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for ev := range sess.Events() {
			printEvent(ev.Type, ev.Payload)
			if ev.Type == "finalized" || ev.Type == "error" {
				return
			}
		}
	}()

	// 16 kHz mono s16le: 32 bytes per millisecond.
	chunkBytes := 32 * liveChunkMs
	buf := make([]byte, chunkBytes)
	interval := time.Duration(liveChunkMs) * time.Millisecond
	for {
		n, readErr := io.ReadFull(audio, buf)
		if n > 0 {
			if err := sess.SendAudio(buf[:n]); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
		if readErr != nil {
			break
		}
		// Pace file playback like a real capture device.
		if liveAudioFile != "-" {
			time.Sleep(interval)
		}
	}

	fmt.Println("Audio finished, ending session...")
	if err := sess.End(); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	select {
	case <-printerDone:
	case <-time.After(time.Minute):
		return fmt.Errorf("timed out waiting for finalization")
	}
	return nil
}

func printEvent(eventType string, payload any) {
	switch eventType {
	case "started", "ready":
		fmt.Printf("[%s]\n", eventType)
	case "audio_updated", "visual_updated":
		// Too chatty for the terminal.
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("[%s]\n", eventType)
			return
		}
		fmt.Printf("[%s] %s\n", eventType, data)
	}
}
