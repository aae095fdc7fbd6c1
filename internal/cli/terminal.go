package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/nav"
)

var stepTitles = map[nav.Step]string{
	nav.StepHome:        "HandScan",
	nav.StepConsent:     "Privacy notice",
	nav.StepCapture:     "Picture",
	nav.StepPostCapture: "Picture taken",
	nav.StepProcessing:  "Calculating",
	nav.StepExplanation: "How this estimate was made",
	nav.StepResults:     "Your result",
}

// terminal renders the guided flow as plain text
type terminal struct {
	mu         sync.Mutex
	out        io.Writer
	in         *bufio.Scanner
	assumeYes  bool
	lastPrompt string
}

func newTerminal(out io.Writer, in io.Reader, assumeYes bool) *terminal {
	return &terminal{out: out, in: bufio.NewScanner(in), assumeYes: assumeYes}
}

func (t *terminal) Navigate(_ context.Context, step nav.Step) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	title, ok := stepTitles[step]
	if !ok {
		title = string(step)
	}
	fmt.Fprintf(t.out, "\n== %s ==\n", title)
	t.lastPrompt = ""
	return nil
}

// Observe prints the capture instruction whenever it changes
func (t *terminal) Observe(snap capture.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if snap.Instruction == t.lastPrompt {
		return
	}
	t.lastPrompt = snap.Instruction
	fmt.Fprintln(t.out, snap.Instruction)
}

func (t *terminal) Consent(ctx context.Context) (bool, error) {
	t.print("Your hand picture is sent to the HandScan analyzer to estimate your age and gender.\n" +
		"The picture and the estimate are stored with an anonymous scan id.\n")
	return t.ask(ctx, "Do you agree?")
}

func (t *terminal) Retake(ctx context.Context, reason string) (bool, error) {
	t.print(fmt.Sprintf("The picture could not be taken: %s.\n", reason))
	return t.ask(ctx, "Try again?")
}

func (t *terminal) print(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, s)
}

func (t *terminal) ask(ctx context.Context, question string) (bool, error) {
	if t.assumeYes {
		t.print(question + " [y/N] y\n")
		return true, nil
	}
	t.print(question + " [y/N] ")

	answer := make(chan string, 1)
	go func() {
		if t.in.Scan() {
			answer <- t.in.Text()
			return
		}
		close(answer)
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-answer:
		if !ok {
			if err := t.in.Err(); err != nil {
				return false, err
			}
			return false, nil
		}
		a = strings.ToLower(strings.TrimSpace(a))
		return a == "y" || a == "yes", nil
	}
}
