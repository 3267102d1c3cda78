// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind is the kind of a decoded stream line.
type EventKind int

const (
	// EventDelta carries a decoded JSON object.
	EventDelta EventKind = iota
	// EventDone is the "[DONE]" end-of-stream marker.
	EventDone
	// EventError is a line that could not be decoded. It is never fatal.
	EventError
)

// Event is one decoded stream line.
type Event struct {
	Kind  EventKind
	Delta Delta
	// Err is a DecodeError for EventError.
	Err error
	// Line is the offending line for EventError, truncated for logging.
	Line string
}

// Delta is one incremental fragment of assistant output.
type Delta struct {
	// Text is the content fragment, taken from "text", "content" or
	// "choices[0].delta.content", whichever is first non-empty.
	Text         string
	Role         string
	FinishReason string
	Model        string
	ID           string
	// Raw is the full JSON object of the line.
	Raw json.RawMessage
}

type wireDelta struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	Content      string `json:"content"`
	Role         string `json:"role"`
	FinishReason string `json:"finish_reason"`
	Choices      []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// parseDelta decodes a JSON object payload. Fields of unexpected types are
// left empty rather than failing the line.
func parseDelta(payload []byte) (Delta, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Delta{}, err
	}
	if probe == nil {
		return Delta{}, errors.New("payload is not a JSON object")
	}

	var w wireDelta
	if err := json.Unmarshal(payload, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return Delta{}, err
		}
	}

	d := Delta{
		ID:           w.ID,
		Model:        w.Model,
		Role:         w.Role,
		FinishReason: w.FinishReason,
		Raw:          append(json.RawMessage(nil), payload...),
	}
	switch {
	case w.Text != "":
		d.Text = w.Text
	case w.Content != "":
		d.Text = w.Content
	case len(w.Choices) > 0 && w.Choices[0].Delta.Content != "":
		d.Text = w.Choices[0].Delta.Content
	case len(w.Choices) > 0:
		d.Text = w.Choices[0].Message.Content
	}
	if len(w.Choices) > 0 {
		if d.Role == "" {
			d.Role = w.Choices[0].Delta.Role
		}
		if d.FinishReason == "" {
			d.FinishReason = w.Choices[0].FinishReason
		}
	}
	return d, nil
}

// =============================================================================
// LINE DECODER
// =============================================================================

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Decoder turns stream bytes into Events. Bytes may be fed in arbitrary
// pieces; a partial trailing line is held until its newline arrives. Lines
// are split on "\n" and a trailing "\r" is dropped. Blank lines and lines
// without the "data:" prefix produce nothing.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	// MaxLineSize bounds a single line. A longer line yields one EventError
	// and is discarded through its newline. Zero means DefaultMaxLineSize.
	MaxLineSize int

	buf        []byte
	discarding bool
}

// Feed decodes p, calling emit for each event in order. It stops and returns
// false as soon as emit returns false; remaining bytes are dropped.
func (d *Decoder) Feed(p []byte, emit func(Event) bool) bool {
	limit := d.MaxLineSize
	if limit <= 0 {
		limit = DefaultMaxLineSize
	}

	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			if d.discarding {
				return true
			}
			d.buf = append(d.buf, p...)
			if len(d.buf) > limit {
				return d.overflow(limit, emit)
			}
			return true
		}

		chunk := p[:i]
		p = p[i+1:]

		if d.discarding {
			d.discarding = false
			continue
		}
		if len(d.buf)+len(chunk) > limit {
			if len(d.buf) == 0 {
				d.buf = append(d.buf, chunk[:min(len(chunk), 64)]...)
			}
			if !d.overflow(limit, emit) {
				return false
			}
			d.discarding = false
			continue
		}

		var line []byte
		if len(d.buf) > 0 {
			d.buf = append(d.buf, chunk...)
			line = d.buf
		} else {
			line = chunk
		}
		ok := d.emitLine(line, emit)
		d.buf = d.buf[:0]
		if !ok {
			return false
		}
	}
	return true
}

// Flush decodes a final line that was not newline-terminated. Call it once
// the underlying reader reports EOF.
func (d *Decoder) Flush(emit func(Event) bool) bool {
	if d.discarding || len(d.buf) == 0 {
		d.buf, d.discarding = d.buf[:0], false
		return true
	}
	ok := d.emitLine(d.buf, emit)
	d.buf = d.buf[:0]
	return ok
}

func (d *Decoder) overflow(limit int, emit func(Event) bool) bool {
	preview := string(d.buf[:min(len(d.buf), 64)])
	d.buf = d.buf[:0]
	d.discarding = true
	return emit(Event{
		Kind: EventError,
		Err:  decodeError("stream line too long", fmt.Errorf("exceeds %d bytes", limit)),
		Line: preview,
	})
}

func (d *Decoder) emitLine(line []byte, emit func(Event) bool) bool {
	ev, ok := parseLine(line)
	if !ok {
		return true
	}
	return emit(ev)
}

// parseLine decodes one complete line. ok is false for lines that carry no
// event.
func parseLine(line []byte) (ev Event, ok bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		return Event{}, false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if bytes.Equal(payload, doneMarker) {
		return Event{Kind: EventDone}, true
	}

	delta, err := parseDelta(payload)
	if err != nil {
		return Event{
			Kind: EventError,
			Err:  decodeError("malformed stream line", err),
			Line: shorten(string(line), 120),
		}, true
	}
	return Event{Kind: EventDelta, Delta: delta}, true
}
