package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"stylegen/internal/domain"
	"stylegen/internal/providers/image"
	"stylegen/internal/providers/prompt"
	"stylegen/internal/routes"
	"stylegen/internal/styles"

	"github.com/rs/zerolog"
)

type stubGenerator struct {
	asset     *image.Asset
	err       error
	calls     int
	editCalls int
	lastGen   image.GenerateRequest
	lastEdit  image.EditRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	s.calls++
	s.lastGen = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result(), nil
}

func (s *stubGenerator) Edit(ctx context.Context, req image.EditRequest) (*image.Asset, error) {
	s.editCalls++
	s.lastEdit = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result(), nil
}

func (s *stubGenerator) result() *image.Asset {
	if s.asset != nil {
		return s.asset
	}
	return &image.Asset{URL: "https://img.example/out.png"}
}

type stubRefiner struct {
	res     *prompt.RefineResponse
	err     error
	calls   int
	lastReq prompt.RefineRequest
}

func (s *stubRefiner) Refine(ctx context.Context, req prompt.RefineRequest) (*prompt.RefineResponse, error) {
	s.calls++
	s.lastReq = req
	return s.res, s.err
}

var (
	generateRoute = routes.Route{Number: 1, StyleID: "style1", Mode: domain.ModeGenerate}
	colorRoute    = routes.Route{Number: 4, StyleID: "style4", Mode: domain.ModeGenerate}
	editRoute     = routes.Route{Number: 5, StyleID: "style5", Mode: domain.ModeEdit, Upload: routes.ReferenceField}
	refineRoute   = routes.Route{Number: 6, StyleID: "ink", Mode: domain.ModeGenerate}
	strictRoute   = routes.Route{Number: 7, StyleID: "inkStrict", Mode: domain.ModeGenerate}
	missingRoute  = routes.Route{Number: 9, StyleID: "style9", Mode: domain.ModeGenerate}
)

func testCatalog(t *testing.T, mode styles.LookupMode) *styles.Catalog {
	t.Helper()
	cat, err := styles.New([]domain.StyleDefinition{
		{ID: "style1", Name: "Minimal Geometric", Description: "clean vector lines"},
		{ID: "style4", Name: "Bold Color", Description: "flat poster", UsesColors: true},
		{ID: "style5", Name: "Glass", FixedPrompt: "3D render of a translucent glass object."},
		{ID: "ink", Name: "Ink", Description: "sumi-e brush work", Refine: true},
		{ID: "inkStrict", Name: "Ink", Refine: true, RefinementRequired: true},
	}, mode)
	if err != nil {
		t.Fatalf("styles.New returned error: %v", err)
	}
	return cat
}

func newTestService(t *testing.T, gen image.Generator, ref prompt.Refiner, policy RefinementPolicy) *Service {
	t.Helper()
	return NewService(Options{
		Styles:  testCatalog(t, styles.LookupStrict),
		Images:  gen,
		Refiner: ref,
		Policy:  policy,
		Logger:  zerolog.Nop(),
	})
}

func TestHandleEndToEndDefaultStyle(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil, RefinementFallback)

	res, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: "a red fox logo"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if gen.calls != 1 || gen.editCalls != 0 {
		t.Fatalf("generate calls = %d, edit calls = %d", gen.calls, gen.editCalls)
	}
	sent := gen.lastGen.Prompt
	for _, part := range []string{"Minimal Geometric", "clean vector lines", "a red fox logo"} {
		if !strings.Contains(sent, part) {
			t.Fatalf("provider prompt %q missing %q", sent, part)
		}
	}
	if res.ImageURL != "https://img.example/out.png" {
		t.Fatalf("ImageURL = %q", res.ImageURL)
	}
	if res.Size != domain.Size1024 || res.Quality != domain.QualityStandard {
		t.Fatalf("size/quality = %q/%q", res.Size, res.Quality)
	}
	if res.RevisedPrompt != sent {
		t.Fatalf("RevisedPrompt = %q, want final prompt when provider returns none", res.RevisedPrompt)
	}
}

func TestHandlePrefersProviderRevisedPrompt(t *testing.T) {
	gen := &stubGenerator{asset: &image.Asset{URL: "u", RevisedPrompt: "provider revised"}}
	svc := newTestService(t, gen, nil, RefinementFallback)
	res, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{
		Prompt:  "x",
		Size:    "1024x1792",
		Quality: "hd",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if res.RevisedPrompt != "provider revised" {
		t.Fatalf("RevisedPrompt = %q", res.RevisedPrompt)
	}
	if res.Size != domain.Size1792Tall || res.Quality != domain.QualityHD {
		t.Fatalf("size/quality = %q/%q", res.Size, res.Quality)
	}
	if gen.lastGen.Size != domain.Size1792Tall || gen.lastGen.Quality != domain.QualityHD {
		t.Fatalf("provider request = %#v", gen.lastGen)
	}
}

func TestHandleInvalidSizeAndQualityFallBackToDefaults(t *testing.T) {
	tests := []struct {
		name  string
		model string
		size  domain.Size
		want  domain.Size
	}{
		{name: "unknown size", size: "3x3", want: domain.DefaultSize},
		{name: "small size on default model", size: domain.Size512, want: domain.DefaultSize},
		{name: "small size on dall-e-3", model: "dall-e-3", size: domain.Size256, want: domain.DefaultSize},
		{name: "small size on dall-e-2", model: "dall-e-2", size: domain.Size512, want: domain.Size512},
		{name: "wide size on dall-e-2", model: "dall-e-2", size: domain.Size1792Wide, want: domain.DefaultSize},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{}
			svc := NewService(Options{
				Styles:     testCatalog(t, styles.LookupStrict),
				Images:     gen,
				Logger:     zerolog.Nop(),
				ImageModel: tc.model,
			})
			res, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: "x", Size: tc.size, Quality: "ultra"})
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if res.Size != tc.want || res.Quality != domain.DefaultQuality {
				t.Fatalf("size/quality = %q/%q", res.Size, res.Quality)
			}
			if gen.lastGen.Size != tc.want {
				t.Fatalf("provider size = %q, want %q", gen.lastGen.Size, tc.want)
			}
		})
	}
}

type blockingGenerator struct {
	calls int
}

func (b *blockingGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingGenerator) Edit(ctx context.Context, req image.EditRequest) (*image.Asset, error) {
	return b.Generate(ctx, image.GenerateRequest{})
}

func TestHandleDeadlineReturnsGatewayTimeout(t *testing.T) {
	gen := &blockingGenerator{}
	svc := NewService(Options{
		Styles:   testCatalog(t, styles.LookupStrict),
		Images:   gen,
		Logger:   zerolog.Nop(),
		Deadline: 20 * time.Millisecond,
	})
	start := time.Now()
	res, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: "x"})
	if res != nil {
		t.Fatalf("result = %#v, want nil", res)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if domain.StatusOf(err) != http.StatusGatewayTimeout || domain.KindOf(err) != domain.KindTransient {
		t.Fatalf("status/kind = %d/%q", domain.StatusOf(err), domain.KindOf(err))
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Message != "Image generation timed out" {
		t.Fatalf("error = %#v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Handle took %v", elapsed)
	}
	if gen.calls != 1 {
		t.Fatalf("provider calls = %d", gen.calls)
	}
}

func TestHandleValidationErrorsSkipProvider(t *testing.T) {
	tests := []struct {
		name    string
		route   routes.Route
		req     domain.GenerationRequest
		want    error
		message string
	}{
		{name: "empty prompt", route: generateRoute, req: domain.GenerationRequest{Prompt: "   "}, want: domain.ErrPromptRequired, message: "Image description required"},
		{name: "prompt too long", route: generateRoute, req: domain.GenerationRequest{Prompt: strings.Repeat("a", 1001)}, want: domain.ErrPromptTooLong, message: "Prompt too long (max 1000 chars)"},
		{name: "unknown style", route: missingRoute, req: domain.GenerationRequest{Prompt: "x"}, want: domain.ErrStyleNotFound, message: "Style 'style9' not found."},
		{name: "edit without file", route: editRoute, req: domain.GenerationRequest{}, want: domain.ErrReferenceRequired, message: "Reference image is required."},
		{name: "fixed style still bounds length", route: editRoute, req: domain.GenerationRequest{Prompt: strings.Repeat("b", 1001), Reference: &domain.ReferenceImage{Data: []byte("png")}}, want: domain.ErrPromptTooLong, message: "Prompt too long (max 1000 chars)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{}
			svc := newTestService(t, gen, nil, RefinementFallback)
			_, err := svc.Handle(context.Background(), tc.route, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var de *domain.Error
			if !errors.As(err, &de) || de.Kind != domain.KindValidation || de.Message != tc.message {
				t.Fatalf("error = %#v", err)
			}
			if gen.calls+gen.editCalls != 0 {
				t.Fatalf("provider called %d times, want 0", gen.calls+gen.editCalls)
			}
		})
	}
}

func TestHandlePromptLengthCountsCodePoints(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil, RefinementFallback)
	_, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: strings.Repeat("é", 1000)})
	if err != nil {
		t.Fatalf("1000 code points should be accepted, got %v", err)
	}
	// "e" + combining acute composes to a single code point under NFC.
	_, err = svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: strings.Repeat("e\u0301", 1000)})
	if err != nil {
		t.Fatalf("decomposed prompt should normalize to 1000 code points, got %v", err)
	}
}

func TestHandleColorParameters(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil, RefinementFallback)
	_, err := svc.Handle(context.Background(), colorRoute, domain.GenerationRequest{
		Prompt: "a lighthouse",
		Colors: [domain.MaxColors]string{"red", "", "blue"},
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(gen.lastGen.Prompt, "red, N/A, blue") {
		t.Fatalf("prompt = %q", gen.lastGen.Prompt)
	}
}

func TestHandleEditUsesEditOperationAndPlaceholderMask(t *testing.T) {
	gen := &stubGenerator{}
	svc := newTestService(t, gen, nil, RefinementFallback)
	res, err := svc.Handle(context.Background(), editRoute, domain.GenerationRequest{
		Size:      domain.Size512,
		Reference: &domain.ReferenceImage{Data: []byte("png")},
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if gen.editCalls != 1 || gen.calls != 0 {
		t.Fatalf("edit calls = %d, generate calls = %d", gen.editCalls, gen.calls)
	}
	if gen.lastEdit.Prompt != "3D render of a translucent glass object." {
		t.Fatalf("edit prompt = %q", gen.lastEdit.Prompt)
	}
	if len(gen.lastEdit.Mask) == 0 {
		t.Fatal("placeholder mask should be attached")
	}
	if res.Size != domain.Size1024 {
		t.Fatalf("edit size = %q, want 1024x1024", res.Size)
	}
}

func TestHandleRefinement(t *testing.T) {
	gen := &stubGenerator{}
	ref := &stubRefiner{res: &prompt.RefineResponse{Prompt: "an elegant crane in ink"}}
	svc := newTestService(t, gen, ref, RefinementFallback)
	res, err := svc.Handle(context.Background(), refineRoute, domain.GenerationRequest{Prompt: "a crane"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if ref.calls != 1 || ref.lastReq.Instruction != "sumi-e brush work" || ref.lastReq.Prompt != "a crane" {
		t.Fatalf("refiner request = %#v (calls %d)", ref.lastReq, ref.calls)
	}
	if gen.lastGen.Prompt != "an elegant crane in ink" {
		t.Fatalf("provider prompt = %q", gen.lastGen.Prompt)
	}
	if res.RevisedPrompt != "an elegant crane in ink" {
		t.Fatalf("RevisedPrompt = %q", res.RevisedPrompt)
	}
}

func TestHandleRefinementFailurePolicies(t *testing.T) {
	failing := func() *stubRefiner {
		return &stubRefiner{err: &prompt.RefineError{Reason: "http_500", Err: errors.New("upstream")}}
	}
	t.Run("fallback uses raw prompt", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := newTestService(t, gen, failing(), RefinementFallback)
		if _, err := svc.Handle(context.Background(), refineRoute, domain.GenerationRequest{Prompt: "a crane"}); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if gen.lastGen.Prompt != "a crane" {
			t.Fatalf("provider prompt = %q, want raw prompt", gen.lastGen.Prompt)
		}
	})
	t.Run("fail policy", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := newTestService(t, gen, failing(), RefinementFail)
		_, err := svc.Handle(context.Background(), refineRoute, domain.GenerationRequest{Prompt: "a crane"})
		if !errors.Is(err, domain.ErrRefinementFailed) {
			t.Fatalf("err = %v, want ErrRefinementFailed", err)
		}
		if gen.calls != 0 {
			t.Fatal("provider must not be called")
		}
	})
	t.Run("style requires refinement", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := newTestService(t, gen, failing(), RefinementFallback)
		_, err := svc.Handle(context.Background(), strictRoute, domain.GenerationRequest{Prompt: "a crane"})
		if !errors.Is(err, domain.ErrRefinementFailed) {
			t.Fatalf("err = %v, want ErrRefinementFailed", err)
		}
		if domain.StatusOf(err) != http.StatusBadGateway {
			t.Fatalf("status = %d", domain.StatusOf(err))
		}
	})
	t.Run("missing refiner falls back", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := newTestService(t, gen, nil, RefinementFallback)
		if _, err := svc.Handle(context.Background(), refineRoute, domain.GenerationRequest{Prompt: "a crane"}); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	})
}

func TestHandleProviderErrors(t *testing.T) {
	policy := domain.NewProvider(domain.KindContentPolicy, "Prompt rejected: violates content policy", http.StatusBadRequest, errors.New("raw"))
	gen := &stubGenerator{err: policy}
	svc := newTestService(t, gen, nil, RefinementFallback)
	_, err := svc.Handle(context.Background(), generateRoute, domain.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, policy) {
		t.Fatalf("err = %v, want classified provider error", err)
	}

	gen = &stubGenerator{err: errors.New("socket closed")}
	svc = newTestService(t, gen, nil, RefinementFallback)
	_, err = svc.Handle(context.Background(), editRoute, domain.GenerationRequest{Reference: &domain.ReferenceImage{Data: []byte("png")}})
	var de *domain.Error
	if !errors.As(err, &de) || de.Message != "Image edit failed" || de.HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("err = %#v", err)
	}
}

func TestHandleLenientLookupUsesDefaultStyle(t *testing.T) {
	gen := &stubGenerator{}
	svc := NewService(Options{
		Styles: testCatalog(t, styles.LookupLenient),
		Images: gen,
		Logger: zerolog.Nop(),
	})
	if _, err := svc.Handle(context.Background(), missingRoute, domain.GenerationRequest{Prompt: "a fox"}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(gen.lastGen.Prompt, styles.DefaultStyle.Name) {
		t.Fatalf("prompt = %q, want default style", gen.lastGen.Prompt)
	}
}

func TestParseRefinementPolicy(t *testing.T) {
	if ParseRefinementPolicy("FAIL") != RefinementFail {
		t.Fatal("expected fail")
	}
	if ParseRefinementPolicy("") != RefinementFallback {
		t.Fatal("expected fallback default")
	}
}
