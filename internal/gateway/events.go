package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"parley/internal/logging"
	"parley/internal/types"
)

const eventChannelDepth = 256

// Events subscribes to the gateway event stream. The returned cancel
// function tears the subscription down; the channel closes when the
// stream ends. Delivery is best-effort: if the consumer falls behind the
// buffered channel, events are dropped rather than blocking the reader.
func (c *Client) Events(ctx context.Context) (<-chan types.GatewayEvent, func(), error) {
	if err := c.ensureToken(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	// The long-lived stream must not inherit the RPC client's timeout.
	httpClient := &http.Client{Transport: c.http.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		return nil, nil, decodeAPIError(resp)
	}

	debug := logging.StreamDebug()
	ch := make(chan types.GatewayEvent, eventChannelDepth)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		start := time.Now()
		count := 0
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var dataLines []string

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if len(dataLines) == 0 {
					continue
				}
				payload := strings.Join(dataLines, "\n")
				dataLines = dataLines[:0]
				var event types.GatewayEvent
				if err := json.Unmarshal([]byte(payload), &event); err != nil {
					debug.Debug("event decode failed", logging.F("err", err))
					continue
				}
				select {
				case ch <- event:
					count++
				default:
					debug.Debug("event dropped", logging.F("event", event.Event))
				}
				continue
			}
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
			}
		}
		if err := scanner.Err(); err != nil {
			debug.Debug("event stream scan error", logging.F("err", err))
		}
		debug.Debug("event stream closed",
			logging.F("count", count),
			logging.F("dur", time.Since(start)))
	}()

	return ch, cancel, nil
}
