package capture

import (
	"fmt"
	"log/slog"
)

// User-facing instruction texts
const (
	InstructionPreparing      = "Preparing camera..."
	InstructionPlaceHand      = "Please place your hand in the camera frame."
	InstructionHandDetected   = "Hand detected. Hold your position..."
	InstructionSpreadFingers  = "Hand detected. Please spread your fingers."
	InstructionShowWholeHand  = "Hand detected. Keep your whole hand inside the frame."
	InstructionCapturing      = "Taking picture..."
	InstructionSucceeded      = "Picture captured successfully!"
	InstructionProcessing     = "Processing, waiting for further instructions..."
	InstructionCameraError    = "Error accessing the camera."
	InstructionConnectionLost = "Error: the connection to the analyzer was lost."
	InstructionStoreError     = "Error: the captured picture could not be saved."
)

// Failure reasons that do not come from the analyzer
const (
	ReasonCameraUnavailable = "camera unavailable"
	ReasonConnectionFailed  = "connection to the analyzer failed"
	ReasonConnectionLost    = "connection to the analyzer lost"
	ReasonNoResponse        = "analyzer stopped responding"
	ReasonStoreFailed       = "captured image could not be stored"
	reasonServerError       = "the analyzer reported an error"
)

// ImageWriter is the part of the session store the machine writes to
type ImageWriter interface {
	SetCapturedImage(ref string) error
}

// Machine interprets analyzer messages into capture phases. The analyzer is
// authoritative; the machine never advances on its own.
//
// Machine is not safe for concurrent use; the Controller serializes access.
type Machine struct {
	phase       Phase
	instruction string
	store       ImageWriter
	logger      *slog.Logger
}

// NewMachine creates a machine in AwaitingHand
func NewMachine(store ImageWriter, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		phase:       AwaitingHand(),
		instruction: InstructionPreparing,
		store:       store,
		logger:      logger,
	}
}

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) Instruction() string { return m.instruction }

// HandleRaw parses and applies one inbound payload. Payloads that cannot be
// parsed, or carry an unknown flow, leave the phase untouched and only replace
// the instruction. It reports whether the phase changed.
func (m *Machine) HandleRaw(raw []byte) bool {
	if m.phase.Terminal() {
		return false
	}
	msg, err := ParseMessage(raw)
	if err != nil {
		m.logger.Warn("Ignoring analyzer message", "error", err, "phase", m.phase.Kind)
		m.instruction = InstructionProcessing
		return false
	}
	return m.Apply(msg)
}

// Apply runs the transition for a parsed message and reports whether the
// phase changed. Messages after a terminal phase are absorbed.
func (m *Machine) Apply(msg Message) bool {
	if m.phase.Terminal() {
		return false
	}

	switch msg.Flow {
	case FlowValidation:
		if !msg.landmarksDetected() {
			return m.transition(AwaitingHand(), InstructionPlaceHand)
		}
		instruction := InstructionHandDetected
		switch {
		case reportedFalse(msg.HandIsVisible):
			instruction = InstructionShowWholeHand
		case reportedFalse(msg.HandIsSpread):
			instruction = InstructionSpreadFingers
		}
		return m.transition(HandDetected(), instruction)

	case FlowTimer:
		next := Countdown(derefInt(msg.Time))
		return m.transition(next, fmt.Sprintf("Photo will be taken in %d seconds...", next.SecondsRemaining))

	case FlowTakingImages:
		return m.transition(Capturing(), InstructionCapturing)

	case FlowSuccess:
		if msg.Image == "" {
			m.instruction = InstructionProcessing
			return false
		}
		if err := m.store.SetCapturedImage(msg.Image); err != nil {
			m.logger.Error("Failed to store captured image", "error", err)
			return m.transition(Failed(ReasonStoreFailed), InstructionStoreError)
		}
		return m.transition(Succeeded(msg.Image), InstructionSucceeded)

	case FlowError:
		reason := msg.Message
		if reason == "" {
			reason = reasonServerError
		}
		return m.transition(Failed(reason), "Error: "+reason)

	default:
		m.logger.Warn("Ignoring analyzer message", "flow", msg.Flow, "phase", m.phase.Kind)
		m.instruction = InstructionProcessing
		return false
	}
}

// Fail moves a non-terminal machine to Failed for causes outside the
// protocol (camera, connection, timeout).
func (m *Machine) Fail(reason, instruction string) bool {
	if m.phase.Terminal() {
		return false
	}
	return m.transition(Failed(reason), instruction)
}

func (m *Machine) transition(next Phase, instruction string) bool {
	changed := next != m.phase
	if changed {
		m.logger.Debug("Capture phase changed", "from", m.phase, "to", next)
	}
	m.phase = next
	m.instruction = instruction
	return changed
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
