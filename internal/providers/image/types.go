package image

import (
	"context"

	"stylegen/internal/domain"
)

// GenerateRequest describes a text-to-image call.
type GenerateRequest struct {
	Prompt    string
	Size      domain.Size
	Quality   domain.Quality
	RequestID string
}

// EditRequest describes an image edit call. Image is expected to be PNG.
type EditRequest struct {
	Prompt    string
	Image     []byte
	Mask      []byte
	Size      domain.Size
	RequestID string
}

// Asset is the first result entry returned by the provider.
type Asset struct {
	URL           string
	RevisedPrompt string
}

// Generator is the contract implemented by image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Edit(ctx context.Context, req EditRequest) (*Asset, error)
}
