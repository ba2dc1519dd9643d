package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"stylegen/internal/domain"
	"stylegen/internal/providers/image"
	"stylegen/internal/providers/prompt"
	"stylegen/internal/routes"
	"stylegen/internal/upload"
	"stylegen/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// Stage names the step a request reached.
type Stage string

const (
	StageReceived   Stage = "received"
	StageValidated  Stage = "validated"
	StageRefining   Stage = "refining"
	StageComposed   Stage = "composed"
	StageDispatched Stage = "dispatched"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// RefinementPolicy decides what a refinement failure does to the request.
type RefinementPolicy string

const (
	RefinementFallback RefinementPolicy = "fallback"
	RefinementFail     RefinementPolicy = "fail"
)

// ParseRefinementPolicy defaults to fallback.
func ParseRefinementPolicy(raw string) RefinementPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(RefinementFail)) {
		return RefinementFail
	}
	return RefinementFallback
}

const (
	msgPromptRequired    = "Image description required"
	msgPromptTooLong     = "Prompt too long (max 1000 chars)"
	msgReferenceRequired = "Reference image is required."
	msgRefinementFailed  = "Prompt refinement failed"
	msgTimedOut          = "Image generation timed out"
)

// StyleSource resolves style ids.
type StyleSource interface {
	Lookup(id string) (domain.StyleDefinition, error)
}

type Options struct {
	Styles  StyleSource
	Images  image.Generator
	Refiner prompt.Refiner
	Policy  RefinementPolicy
	Logger  zerolog.Logger
	// ImageModel selects which output sizes are accepted.
	ImageModel string
	// Deadline bounds one request across refinement, retries and backoff.
	// Zero means no bound beyond the caller's context.
	Deadline time.Duration
	// Mask supplies the placeholder mask sent with every edit.
	Mask func() ([]byte, error)
}

// Service runs one generation request end to end. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	styles     StyleSource
	images     image.Generator
	refiner    prompt.Refiner
	policy     RefinementPolicy
	logger     zerolog.Logger
	imageModel string
	deadline   time.Duration
	mask       func() ([]byte, error)
}

func NewService(opts Options) *Service {
	s := &Service{
		styles:     opts.Styles,
		images:     opts.Images,
		refiner:    opts.Refiner,
		policy:     opts.Policy,
		logger:     opts.Logger,
		imageModel: opts.ImageModel,
		deadline:   opts.Deadline,
		mask:       opts.Mask,
	}
	if s.policy == "" {
		s.policy = RefinementFallback
	}
	if s.mask == nil {
		s.mask = upload.PlaceholderMask
	}
	return s
}

// Handle validates req for route, builds the final prompt, calls the image
// provider and shapes the result. Either a complete result or an error is
// returned, never both.
func (s *Service) Handle(ctx context.Context, route routes.Route, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	log := s.logger.With().Str("request_id", req.RequestID).Str("style", route.StyleID).Str("mode", string(route.Mode)).Logger()
	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}
	stage := StageReceived
	res, err := s.handle(ctx, route, req, &stage, log)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = domain.NewProvider(domain.KindTransient, msgTimedOut, http.StatusGatewayTimeout, errors.Join(context.DeadlineExceeded, err))
	}
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(route.StyleID, string(route.Mode), string(domain.KindOf(err))).Inc()
		ev := log.Warn()
		if domain.StatusOf(err) >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).Str("stage", string(stage)).Str("kind", string(domain.KindOf(err))).Msg("generation failed")
		return nil, err
	}
	metrics.GenerationTotal.WithLabelValues(route.StyleID, string(route.Mode), "success").Inc()
	log.Info().Str("stage", string(StageCompleted)).Msg("generation completed")
	return res, nil
}

func (s *Service) handle(ctx context.Context, route routes.Route, req domain.GenerationRequest, stage *Stage, log zerolog.Logger) (*domain.GenerationResult, error) {
	style, err := s.styles.Lookup(route.StyleID)
	if err != nil {
		return nil, err
	}
	userPrompt, err := validatePrompt(req.Prompt, style.HasFixedPrompt())
	if err != nil {
		return nil, err
	}
	if route.Mode == domain.ModeEdit && (req.Reference == nil || len(req.Reference.Data) == 0) {
		return nil, domain.NewValidation(msgReferenceRequired, domain.ErrReferenceRequired)
	}
	size := domain.ParseSizeFor(s.imageModel, string(req.Size))
	if route.Mode == domain.ModeEdit {
		size = domain.Size1024
	}
	quality := domain.ParseQuality(string(req.Quality))
	*stage = StageValidated

	comp := image.Compose(image.ComposeInput{Style: style, Prompt: userPrompt, Colors: req.Colors, Mode: route.Mode})
	finalPrompt := comp.Prompt
	if comp.Template == image.TemplateRefine {
		*stage = StageRefining
		finalPrompt, err = s.refine(ctx, style, comp, req.RequestID, log)
		if err != nil {
			return nil, err
		}
	}
	*stage = StageComposed
	log.Debug().Str("template", string(comp.Template)).Str("prompt", finalPrompt).Msg("prompt composed")

	*stage = StageDispatched
	asset, err := s.dispatch(ctx, route, req, finalPrompt, size, quality)
	if err != nil {
		return nil, err
	}
	*stage = StageCompleted

	revised := strings.TrimSpace(asset.RevisedPrompt)
	if revised == "" {
		revised = finalPrompt
	}
	return &domain.GenerationResult{
		ImageURL:      asset.URL,
		RevisedPrompt: revised,
		Size:          size,
		Quality:       quality,
	}, nil
}

// validatePrompt NFC-normalizes the prompt and checks its length in code
// points. An empty prompt is allowed only for fixed-prompt styles.
func validatePrompt(raw string, optional bool) (string, error) {
	p := strings.TrimSpace(norm.NFC.String(raw))
	if p == "" {
		if optional {
			return "", nil
		}
		return "", domain.NewValidation(msgPromptRequired, domain.ErrPromptRequired)
	}
	if utf8.RuneCountInString(p) > domain.MaxPromptLength {
		return "", domain.NewValidation(msgPromptTooLong, domain.ErrPromptTooLong)
	}
	return p, nil
}

func (s *Service) refine(ctx context.Context, style domain.StyleDefinition, comp image.Composition, requestID string, log zerolog.Logger) (string, error) {
	var (
		res *prompt.RefineResponse
		err error
	)
	if s.refiner == nil {
		err = &prompt.RefineError{Reason: "no_refiner"}
	} else {
		res, err = s.refiner.Refine(ctx, prompt.RefineRequest{
			Instruction: comp.Instruction,
			Prompt:      comp.Prompt,
			StyleID:     style.ID,
			RequestID:   requestID,
		})
	}
	if err == nil && res != nil && strings.TrimSpace(res.Prompt) != "" {
		return strings.TrimSpace(res.Prompt), nil
	}
	if err == nil {
		err = &prompt.RefineError{Reason: "empty_response"}
	}
	reason := prompt.ReasonOf(err)
	if s.policy == RefinementFail || style.RefinementRequired || ctx.Err() != nil {
		return "", domain.NewProvider(domain.KindProvider, msgRefinementFailed, http.StatusBadGateway, errors.Join(domain.ErrRefinementFailed, err))
	}
	metrics.RefinementFallbackTotal.WithLabelValues(reason).Inc()
	log.Warn().Err(err).Str("reason", reason).Msg("prompt refinement failed, using raw prompt")
	return comp.Prompt, nil
}

func (s *Service) dispatch(ctx context.Context, route routes.Route, req domain.GenerationRequest, finalPrompt string, size domain.Size, quality domain.Quality) (*image.Asset, error) {
	var (
		asset *image.Asset
		err   error
	)
	if route.Mode == domain.ModeEdit {
		mask, maskErr := s.mask()
		if maskErr != nil {
			return nil, domain.NewProvider(domain.KindProvider, "Image edit failed", 0, maskErr)
		}
		asset, err = s.images.Edit(ctx, image.EditRequest{
			Prompt:    finalPrompt,
			Image:     req.Reference.Data,
			Mask:      mask,
			Size:      size,
			RequestID: req.RequestID,
		})
	} else {
		asset, err = s.images.Generate(ctx, image.GenerateRequest{
			Prompt:    finalPrompt,
			Size:      size,
			Quality:   quality,
			RequestID: req.RequestID,
		})
	}
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		msg := "Image generation failed"
		if route.Mode == domain.ModeEdit {
			msg = "Image edit failed"
		}
		return nil, domain.NewProvider(domain.KindProvider, msg, 0, err)
	}
	if asset == nil || strings.TrimSpace(asset.URL) == "" {
		return nil, domain.NewProvider(domain.KindProvider, "Image generation failed", http.StatusBadGateway, errors.New("provider returned no image"))
	}
	return asset, nil
}
