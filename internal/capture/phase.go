package capture

import "fmt"

// PhaseKind tags the active capture phase
type PhaseKind int

const (
	KindAwaitingHand PhaseKind = iota
	KindHandDetected
	KindCountdown
	KindCapturing
	KindSucceeded
	KindFailed
)

func (k PhaseKind) String() string {
	switch k {
	case KindAwaitingHand:
		return "awaiting_hand"
	case KindHandDetected:
		return "hand_detected"
	case KindCountdown:
		return "countdown"
	case KindCapturing:
		return "capturing"
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Phase is the current stage of the server-driven capture protocol. Only the
// field matching Kind is meaningful.
type Phase struct {
	Kind             PhaseKind
	SecondsRemaining int    // KindCountdown
	ImageRef         string // KindSucceeded
	Reason           string // KindFailed
}

func AwaitingHand() Phase { return Phase{Kind: KindAwaitingHand} }

func HandDetected() Phase { return Phase{Kind: KindHandDetected} }

// Countdown clamps negative values to zero
func Countdown(seconds int) Phase {
	return Phase{Kind: KindCountdown, SecondsRemaining: max(seconds, 0)}
}

func Capturing() Phase { return Phase{Kind: KindCapturing} }

func Succeeded(imageRef string) Phase { return Phase{Kind: KindSucceeded, ImageRef: imageRef} }

func Failed(reason string) Phase { return Phase{Kind: KindFailed, Reason: reason} }

// Terminal reports whether no further transition can happen
func (p Phase) Terminal() bool {
	return p.Kind == KindSucceeded || p.Kind == KindFailed
}

func (p Phase) String() string {
	switch p.Kind {
	case KindCountdown:
		return fmt.Sprintf("%s(%d)", p.Kind, p.SecondsRemaining)
	case KindSucceeded:
		return fmt.Sprintf("%s(%s)", p.Kind, p.ImageRef)
	case KindFailed:
		return fmt.Sprintf("%s(%s)", p.Kind, p.Reason)
	default:
		return p.Kind.String()
	}
}
