package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamTournamentSSE streams render snapshots of the bracket as they change.
// Spectator pages hang on this instead of polling GET /tournament.
func (s *TournamentService) StreamTournamentSSE(c *fiber.Ctx) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastVersion int64 = -1

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		push := func() bool {
			view, ok := s.currentView()
			if !ok || view.Version == lastVersion {
				return true
			}
			lastVersion = view.Version

			payload, err := json.Marshal(view)
			if err != nil {
				log.Printf("SSE serialize error: %v", err)
				return true
			}
			fmt.Fprintf(w, "event: tournament\ndata: %s\n\n", payload)

			// This is the REAL "flush"
			if err := w.Flush(); err != nil {
				// Client disconnected
				return false
			}
			return true
		}

		// Send the current state immediately so a page refresh is not blank
		// until the first tick.
		if !push() {
			return
		}

		for {
			select {
			case <-ticker.C:
				if !push() {
					return
				}
			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
