// internal/vision/model.go

// Package vision turns plate photos into structured consumption estimates
// using a remote vision-language model.
package vision

import "context"

// Image is an encoded image ready to send to a model.
type Image struct {
	Data     []byte
	MIMEType string
}

// Model sends one image and instruction to a vision-language model and
// returns its raw text reply.
type Model interface {
	Generate(ctx context.Context, img Image, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, img Image, prompt string) (string, error)

func (f ModelFunc) Generate(ctx context.Context, img Image, prompt string) (string, error) {
	return f(ctx, img, prompt)
}
