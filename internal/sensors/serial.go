package sensors

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// SerialSource reads newline-delimited board output from a serial port.
type SerialSource struct {
	portName string
	baud     int
	port     serial.Port
	log      zerolog.Logger
}

// NewSerialSource creates a source for the given port. The port is opened
// lazily in Lines so construction never touches hardware.
func NewSerialSource(portName string, baud int, log zerolog.Logger) *SerialSource {
	return &SerialSource{
		portName: portName,
		baud:     baud,
		log:      log.With().Str("component", "serial").Str("port", portName).Logger(),
	}
}

// Lines opens the port and streams trimmed non-empty lines. The channel
// closes when the port errors out or the context is cancelled.
func (s *SerialSource) Lines(ctx context.Context) (<-chan string, error) {
	port, err := serial.Open(s.portName, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	s.port = port

	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- line:
			}
		}
		if err := scanner.Err(); err != nil {
			s.log.Error().Err(err).Msg("Serial read failed")
		}
	}()
	return out, nil
}

// Close closes the port, which also unblocks the scanner goroutine.
func (s *SerialSource) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
