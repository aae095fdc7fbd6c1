// Package nav names the steps of the scan flow and the hook used to move between them.
package nav

import "context"

// Step is one page of the guided flow
type Step string

const (
	StepHome        Step = "home"
	StepConsent     Step = "consent"
	StepCapture     Step = "image-capture"
	StepPostCapture Step = "image-post-capture"
	StepProcessing  Step = "processing"
	StepResults     Step = "results"
	StepExplanation Step = "explanation"
)

// Navigator performs a page transition requested by a step
type Navigator interface {
	Navigate(ctx context.Context, step Step) error
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, step Step) error

func (f NavigatorFunc) Navigate(ctx context.Context, step Step) error {
	return f(ctx, step)
}
