package monitor

import (
	"bufio"
	"io"
	"strings"
)

// readEvents consumes a Server-Sent Events stream, invoking fn once per
// complete event. The breach feed uses the plain SSE framing:
//
//	event: <type>
//	data: <json>
//	<blank line>
//
// Comment lines (":keepalive") are ignored. Returns when the stream ends or
// errors; the caller owns reconnection.
func readEvents(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()

		// Blank line terminates the event.
		if line == "" {
			if data != "" {
				fn(event, data)
			}
			event, data = "", ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := strings.TrimSpace(after)
			if data == "" {
				data = chunk
			} else {
				data += "\n" + chunk
			}
		}
	}
	return scanner.Err()
}
