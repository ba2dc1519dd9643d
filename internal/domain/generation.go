package domain

import "strings"

// Mode selects the provider operation used for a route.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

// Size enumerates output dimensions accepted by the image provider.
type Size string

const (
	Size256      Size = "256x256"
	Size512      Size = "512x512"
	Size1024     Size = "1024x1024"
	Size1792Wide Size = "1792x1024"
	Size1792Tall Size = "1024x1792"

	DefaultSize = Size1024
)

// ImageModelDallE2 is the only model that accepts the small square sizes.
const ImageModelDallE2 = "dall-e-2"

var (
	largeSizes = map[Size]struct{}{
		Size1024:     {},
		Size1792Wide: {},
		Size1792Tall: {},
	}
	squareSizes = map[Size]struct{}{
		Size256:  {},
		Size512:  {},
		Size1024: {},
	}
)

// ParseSize returns the matching size for the default generate model, or
// DefaultSize for anything else.
func ParseSize(raw string) Size {
	return ParseSizeFor("", raw)
}

// ParseSizeFor checks raw against the sizes model accepts. Unknown models
// get the dall-e-3 set. Anything outside the set becomes DefaultSize.
func ParseSizeFor(model, raw string) Size {
	allowed := largeSizes
	if strings.EqualFold(strings.TrimSpace(model), ImageModelDallE2) {
		allowed = squareSizes
	}
	s := Size(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := allowed[s]; ok {
		return s
	}
	return DefaultSize
}

// Quality enumerates the rendering quality levels.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"

	DefaultQuality = QualityStandard
)

// ParseQuality returns the matching quality or DefaultQuality.
func ParseQuality(raw string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(raw))) {
	case QualityHD:
		return QualityHD
	case QualityStandard:
		return QualityStandard
	default:
		return DefaultQuality
	}
}

const (
	// MaxPromptLength bounds user prompts, counted in code points.
	MaxPromptLength = 1000
	// MaxColors is the number of color slots a color-parameterized style reads.
	MaxColors = 3
)

// ReferenceImage is an uploaded image held for the duration of one request.
// Data holds the normalized PNG; SourceMIME is the sniffed upload type.
type ReferenceImage struct {
	Filename   string
	MIME       string
	SourceMIME string
	Data       []byte
	Width      int
	Height     int
}

// GenerationRequest is derived per call and never persisted.
type GenerationRequest struct {
	Prompt    string
	Size      Size
	Quality   Quality
	Colors    [MaxColors]string
	Reference *ReferenceImage
	RequestID string
}

// GenerationResult is the normalized response body.
type GenerationResult struct {
	ImageURL      string  `json:"image_url"`
	RevisedPrompt string  `json:"revised_prompt"`
	Size          Size    `json:"size"`
	Quality       Quality `json:"quality"`
}
