package batch

import "fmt"

// MixError marks a mixing provider failure or timeout. It is terminal for
// the batch being processed: the processor converts it into a failed batch
// record instead of propagating it upward.
type MixError struct {
	Err error
}

func (e *MixError) Error() string {
	return fmt.Sprintf("mixing failed: %v", e.Err)
}

func (e *MixError) Unwrap() error {
	return e.Err
}

// GenerationError marks an image provider failure or timeout. Like MixError
// it is terminal for the batch, never propagated as a command failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
