package kalshi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Frames whose first byte is the marker carry a zlib-compressed JSON
// payload; anything else is the JSON payload itself.
const compressedFrameMarker = 0x01

var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is one decoded inbound message: the declared type tag plus the
// full payload bytes, which the typed handlers unmarshal themselves.
type Envelope struct {
	Type string
	Data json.RawMessage
}

// DecodeFrame converts a raw frame into an Envelope. It is a pure function
// and holds no state, so it is safe to call for every inbound frame without
// ordering assumptions beyond what the connection already guarantees.
func DecodeFrame(frame []byte) (*Envelope, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	payload := frame
	if frame[0] == compressedFrameMarker {
		zr, err := zlib.NewReader(bytes.NewReader(frame[1:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
		}
		defer zr.Close()

		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
		}
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedFrame)
	}

	return &Envelope{Type: head.Type, Data: payload}, nil
}
