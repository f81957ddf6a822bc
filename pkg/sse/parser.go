// Package sse implements the Server-Sent-Events client subsystem: an
// incremental wire-format parser and a subscription type owning the
// connection lifecycle, reconnection with exponential backoff and
// Last-Event-ID resumption.
package sse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event is one decoded SSE frame. Data holds the JSON-decoded payload when
// the payload text is valid JSON, otherwise the raw string. Raw always holds
// the joined payload text.
type Event struct {
	// Name is the declared event type, empty for unnamed events.
	Name string

	// Data is the decoded payload.
	Data any

	// Raw is the payload text before decoding, multi-line data joined
	// with \n.
	Raw string

	// ID is the event id used for Last-Event-ID resumption.
	ID string

	// Retry is the server's reconnection-interval hint, zero when absent.
	Retry time.Duration

	hasData bool
}

// IsEmpty reports whether the frame carried no data lines. Such frames still
// matter to the connection manager (id and retry fields are absorbed) but
// are not dispatched to message callbacks.
func (e Event) IsEmpty() bool {
	return !e.hasData
}

// Parser consumes a byte stream incrementally and yields discrete events.
// Bytes may arrive split at arbitrary boundaries, including mid-field and
// mid-rune; incomplete trailing input is buffered until the next Feed. The
// zero value is ready to use. A Parser is bound to one stream and is not
// restartable.
type Parser struct {
	buf []byte

	name      string
	id        string
	retry     time.Duration
	dataLines []string
	sawData   bool
}

// NewParser creates a parser for one event stream.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk to the internal buffer and returns all events completed
// by it. An unterminated final frame is never returned: frames are only
// emitted once their delimiting blank line has been seen.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return events
		}
		line := string(p.buf[:i])
		p.buf = p.buf[i+1:]
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if ev, ok := p.flush(); ok {
				events = append(events, ev)
			}
			continue
		}
		p.parseLine(line)
	}
}

// parseLine applies one non-blank line to the frame under construction.
// Recognized field prefixes are exactly "event:", "data:", "id:" and
// "retry:"; comment lines (leading colon) and unknown fields are ignored.
func (p *Parser) parseLine(line string) {
	if strings.HasPrefix(line, ":") {
		// Comment, commonly used as a heartbeat.
		return
	}

	switch {
	case strings.HasPrefix(line, "data:"):
		p.dataLines = append(p.dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		p.sawData = true
	case strings.HasPrefix(line, "event:"):
		p.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "id:"):
		p.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
	case strings.HasPrefix(line, "retry:"):
		v := strings.TrimSpace(strings.TrimPrefix(line, "retry:"))
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			p.retry = time.Duration(ms) * time.Millisecond
		}
	}
}

// flush completes the frame under construction. Frames in which no
// recognized field appeared produce no event.
func (p *Parser) flush() (Event, bool) {
	if !p.sawData && p.name == "" && p.id == "" && p.retry == 0 {
		return Event{}, false
	}

	ev := Event{
		Name:    p.name,
		ID:      p.id,
		Retry:   p.retry,
		hasData: p.sawData,
	}
	if p.sawData {
		ev.Raw = strings.Join(p.dataLines, "\n")
		ev.Data = decodePayload(ev.Raw)
	}

	p.name = ""
	p.id = ""
	p.retry = 0
	p.dataLines = nil
	p.sawData = false

	return ev, true
}

// decodePayload attempts a structured decode of the payload text. An
// undecodable payload is kept as plain text, never treated as a parse
// failure.
func decodePayload(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	switch trimmed[0] {
	case '{', '[', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}
