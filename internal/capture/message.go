package capture

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Flow is the kind tag of an inbound analyzer message
type Flow string

const (
	FlowValidation   Flow = "validation"
	FlowTimer        Flow = "timer"
	FlowTakingImages Flow = "taking_images"
	FlowSuccess      Flow = "success"
	FlowError        Flow = "error"
)

var (
	// ErrMalformedMessage is returned for payloads that are not a valid analyzer message
	ErrMalformedMessage = errors.New("malformed analyzer message")
	// ErrUnknownFlow is returned for well-formed JSON with an unrecognized flow
	ErrUnknownFlow = errors.New("unknown analyzer flow")
)

// Message is one JSON status event sent by the analyzer
type Message struct {
	Flow              Flow   `json:"flow"`
	LandmarksDetected *bool  `json:"landmarks_detected,omitempty"`
	HandIsSpread      *bool  `json:"hand_is_spread,omitempty"`
	HandIsVisible     *bool  `json:"hand_is_visible,omitempty"`
	Time              *int   `json:"time,omitempty"`
	Image             string `json:"image,omitempty"`
	Message           string `json:"message,omitempty"`
}

// ParseMessage decodes and checks an analyzer message
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Flow {
	case FlowValidation, FlowTakingImages, FlowError:
	case FlowTimer:
		if msg.Time == nil {
			return Message{}, fmt.Errorf("%w: timer without time", ErrMalformedMessage)
		}
	case FlowSuccess:
		if msg.Image == "" {
			return Message{}, fmt.Errorf("%w: success without image", ErrMalformedMessage)
		}
	case "":
		return Message{}, fmt.Errorf("%w: missing flow", ErrMalformedMessage)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownFlow, msg.Flow)
	}
	return msg, nil
}

// A missing landmarks flag counts as no hand.
func (m Message) landmarksDetected() bool {
	return m.LandmarksDetected != nil && *m.LandmarksDetected
}

func reportedFalse(flag *bool) bool {
	return flag != nil && !*flag
}
