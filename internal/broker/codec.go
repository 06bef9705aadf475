package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/colony-launcher/colony/internal/envelope"
)

const maxLineSize = 1 << 20

// ServeLines connects the broker to a JSON-lines stream. Each line of r is
// one Request; each Response is written to w as one line. It returns when r
// ends, when the broker stops, or when ctx ends. Run must be called
// separately.
func ServeLines(ctx context.Context, b *Broker, r io.Reader, w io.Writer) error {
	writerDone := make(chan error, 1)
	go func() { writerDone <- b.writeResponses(ctx, w) }()

	readDone := make(chan error, 1)
	go func() { readDone <- b.readRequests(ctx, r) }()

	select {
	case err := <-readDone:
		return err
	case err := <-writerDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) readRequests(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			b.fail(ctx, Request{}, envelope.Errorf(envelope.ParsingError, "request line: %v", err))
			continue
		}

		if err := b.Submit(ctx, req); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}

	return nil
}

// writeResponses encodes responses until the broker stops, then flushes
// whatever is still queued.
func (b *Broker) writeResponses(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)

	write := func(resp Response) error {
		if err := enc.Encode(resp); err != nil {
			b.logger.Error("write response", slog.String("error", err.Error()))
			return fmt.Errorf("write response: %w", err)
		}

		return nil
	}

	for {
		select {
		case resp := <-b.responses:
			if err := write(resp); err != nil {
				return err
			}
		case <-b.done:
			for {
				select {
				case resp := <-b.responses:
					if err := write(resp); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
