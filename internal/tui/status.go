package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// StatusWriter keeps a single spinner line updated in place while a slow
// step runs outside the progress table, such as waiting for Steam to exit.
type StatusWriter struct {
	w       io.Writer
	mu      sync.Mutex
	message string
	started time.Time
	done    chan struct{}
	stop    sync.Once
}

// NewStatusWriter starts the spinner with an initial message.
func NewStatusWriter(w io.Writer, message string) *StatusWriter {
	sw := &StatusWriter{
		w:       w,
		message: message,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Update replaces the message and restarts the elapsed timer.
func (sw *StatusWriter) Update(message string) {
	sw.mu.Lock()
	sw.message = message
	sw.started = time.Now()
	sw.mu.Unlock()
}

// Stop clears the line. It is safe to call more than once.
func (sw *StatusWriter) Stop() {
	sw.stop.Do(func() {
		close(sw.done)
		sw.mu.Lock()
		fmt.Fprint(sw.w, "\r\033[K")
		sw.mu.Unlock()
	})
}

func (sw *StatusWriter) loop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			fmt.Fprintf(sw.w, "\r\033[K%s %s (%ds)", spinnerFrames[frame%len(spinnerFrames)], sw.message, int(time.Since(sw.started).Seconds()))
			sw.mu.Unlock()
		}
	}
}
