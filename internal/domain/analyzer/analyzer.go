// Package analyzer defines the vision backend contract used for plant diagnosis.
package analyzer

import (
	"context"

	"plant-doctor-bot/internal/domain/image"
)

// DiagnosisPrompt is sent verbatim with every photo.
const DiagnosisPrompt = `Analyze this plant photo and provide a comprehensive diagnosis:

Please provide:
1. **Likely Issue**: What problem the plant might have
2. **Symptoms**: Visible signs in the photo
3. **Causes**: Possible reasons for the issue
4. **Treatment**: Step-by-step solutions
5. **Prevention**: How to avoid recurrence

Be specific and practical in your advice. If the image is unclear or doesn't show a plant, please indicate that.`

// Analyzer turns a prompt and an image into free-form diagnosis text.
//
// Adapters differ in how they degrade: some return a canned answer with a
// nil error, others return the backend error. Callers must handle both.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, prompt string, img *image.Output) (string, error)
}

// Func adapts a function to the Analyzer interface.
type Func func(ctx context.Context, prompt string, img *image.Output) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Analyze(ctx context.Context, prompt string, img *image.Output) (string, error) {
	return f(ctx, prompt, img)
}
