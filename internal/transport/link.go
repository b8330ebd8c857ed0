// Package transport carries the line-oriented command protocol between the
// companion app and the control core over a serial link.
//
// Inbound lines are handed to the control loop as raw command text; outbound
// events (acknowledgements, emergency notifications, status lines) are
// written one per line. The link never blocks the control loop: writes take
// their own mutex and failed writes are logged and dropped.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-robotics/rovercore/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// Sink receives parsed-ready raw command lines. Implemented by the control
// loop.
type Sink interface {
	EnqueueCommand(raw string) bool
}

// Link multiplexes one serial port: inbound lines go to the Sink, outbound
// events are serialized onto the port.
type Link struct {
	port SerialPorter
	sink Sink

	writeMu   sync.Mutex
	closing   bool
	closingMu sync.Mutex
}

// NewLink wraps an open port. AttachSink must be called before Monitor so
// the Link can be constructed before the control loop that consumes it.
func NewLink(port SerialPorter) *Link {
	return &Link{port: port}
}

// AttachSink sets the destination for inbound command lines.
func (l *Link) AttachSink(sink Sink) {
	l.sink = sink
}

// Notify writes one event line to the port. Write errors are logged, not
// returned, so notification call sites inside the control core stay
// infallible.
func (l *Link) Notify(event string) {
	if err := l.writeLine(event); err != nil {
		monitoring.Error("notify failed", "event", event, "err", err)
	}
}

func (l *Link) writeLine(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := l.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the serial port and feeds them to the sink until
// ctx is cancelled or the port errors.
func (l *Link) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(l.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop can
	// still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// Port closed under us.
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			l.closingMu.Lock()
			if l.closing {
				l.closingMu.Unlock()
				return nil
			}
			l.closingMu.Unlock()

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			monitoring.Debug("rx", "line", line)
			if l.sink != nil {
				l.sink.EnqueueCommand(line)
			}
		}
	}
}

// Close stops the monitor on its next line and closes the port.
func (l *Link) Close() error {
	l.closingMu.Lock()
	l.closing = true
	l.closingMu.Unlock()
	return l.port.Close()
}
