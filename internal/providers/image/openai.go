package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"stylegen/internal/domain"
	"stylegen/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	defaultImageModel   = openai.CreateImageModelDallE3
	defaultEditModel    = openai.CreateImageModelDallE2
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 2
	editSize            = domain.Size1024
	msgGenerateFailed   = "Image generation failed"
	msgEditFailed       = "Image edit failed"
	msgContentPolicy    = "Prompt rejected: violates content policy"
	msgBilling          = "API billing issue"
	operationGenerate   = "generate"
	operationEdit       = "edit"
	spoolImageName      = "reference.png"
	spoolMaskName       = "mask.png"
	contentPolicyCode   = "content_policy_violation"
	billingHardLimit    = "billing_hard_limit_reached"
	insufficientQuota   = "insufficient_quota"
	billingNotActive    = "billing_not_active"
	openAIDefaultAPIURL = "https://api.openai.com/v1"
)

// openAIImageClient is the subset of *openai.Client used here.
type openAIImageClient interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
	CreateEditImage(ctx context.Context, request openai.ImageEditRequest) (openai.ImageResponse, error)
}

// spooler writes transient files for multipart uploads.
type spooler interface {
	Spool(ctx context.Context, name string, data []byte) (string, error)
	Remove(path string) error
}

type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
	EditModel    string
	HTTPClient   *http.Client
	Timeout      time.Duration
	// MaxRetries bounds retries after the first attempt; negative selects
	// the default of two.
	MaxRetries int
	// RPS throttles outbound calls; zero disables throttling.
	RPS   float64
	Burst int
	// Spool backs edit uploads with temporary files.
	Spool spooler
	// NewBackOff overrides the retry schedule.
	NewBackOff func() backoff.BackOff
	OnRetry    func(op string, attempt int, err error)
}

// OpenAIGenerator calls the DALL-E image endpoints.
type OpenAIGenerator struct {
	client     openAIImageClient
	model      string
	editModel  string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	spool      spooler
	newBackOff func() backoff.BackOff
	onRetry    func(op string, attempt int, err error)
}

// NewOpenAIGenerator builds a generator backed by go-openai.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	} else {
		cfg.BaseURL = openAIDefaultAPIURL
	}
	cfg.OrgID = strings.TrimSpace(opts.Organization)
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return newOpenAIGenerator(openai.NewClientWithConfig(cfg), opts), nil
}

func newOpenAIGenerator(client openAIImageClient, opts OpenAIOptions) *OpenAIGenerator {
	g := &OpenAIGenerator{
		client:     client,
		model:      coalesce(opts.Model, defaultImageModel),
		editModel:  coalesce(opts.EditModel, defaultEditModel),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		spool:      opts.Spool,
		newBackOff: opts.NewBackOff,
		onRetry:    opts.OnRetry,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.maxRetries < 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.newBackOff == nil {
		g.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		}
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return g
}

// Generate calls the image generation endpoint with the vivid style.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	imgReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          g.model,
		N:              1,
		Size:           string(req.Size),
		Quality:        string(req.Quality),
		Style:          openai.CreateImageStyleVivid,
		ResponseFormat: openai.CreateImageResponseFormatURL,
		User:           req.RequestID,
	}
	resp, err := g.call(ctx, operationGenerate, func(ctx context.Context) (openai.ImageResponse, error) {
		return g.client.CreateImage(ctx, imgReq)
	})
	if err != nil {
		return nil, err
	}
	return firstAsset(resp, operationGenerate)
}

// Edit uploads the reference image and mask and asks for a single edit.
// Spooled files are removed on every exit path.
func (g *OpenAIGenerator) Edit(ctx context.Context, req EditRequest) (*Asset, error) {
	if len(req.Image) == 0 {
		return nil, domain.NewValidation("Reference image is required.", domain.ErrReferenceRequired)
	}
	if g.spool == nil {
		return nil, domain.NewProvider(domain.KindProvider, msgEditFailed, 0, errors.New("no spool configured for edits"))
	}
	imagePath, err := g.spool.Spool(ctx, spoolImageName, req.Image)
	if err != nil {
		return nil, domain.NewProvider(domain.KindProvider, msgEditFailed, 0, err)
	}
	defer func() { _ = g.spool.Remove(imagePath) }()

	var maskPath string
	if len(req.Mask) > 0 {
		maskPath, err = g.spool.Spool(ctx, spoolMaskName, req.Mask)
		if err != nil {
			return nil, domain.NewProvider(domain.KindProvider, msgEditFailed, 0, err)
		}
		defer func() { _ = g.spool.Remove(maskPath) }()
	}

	resp, err := g.call(ctx, operationEdit, func(ctx context.Context) (openai.ImageResponse, error) {
		img, err := os.Open(imagePath)
		if err != nil {
			return openai.ImageResponse{}, backoff.Permanent(err)
		}
		defer img.Close()
		editReq := openai.ImageEditRequest{
			Image:          img,
			Prompt:         req.Prompt,
			Model:          g.editModel,
			N:              1,
			Size:           string(editSize),
			ResponseFormat: openai.CreateImageResponseFormatURL,
			User:           req.RequestID,
		}
		if maskPath != "" {
			mask, err := os.Open(maskPath)
			if err != nil {
				return openai.ImageResponse{}, backoff.Permanent(err)
			}
			defer mask.Close()
			editReq.Mask = mask
		}
		return g.client.CreateEditImage(ctx, editReq)
	})
	if err != nil {
		return nil, err
	}
	return firstAsset(resp, operationEdit)
}

// call runs op with a per-attempt timeout, retrying only transient failures.
func (g *OpenAIGenerator) call(ctx context.Context, op string, fn func(context.Context) (openai.ImageResponse, error)) (openai.ImageResponse, error) {
	start := time.Now()
	defer func() {
		metrics.ProviderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), uint64(g.maxRetries)), ctx)
	attempt := 0
	resp, err := backoff.RetryWithData(func() (openai.ImageResponse, error) {
		attempt++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return openai.ImageResponse{}, backoff.Permanent(err)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		resp, err := fn(attemptCtx)
		if err == nil {
			return resp, nil
		}
		classified := classifyError(op, err)
		if domain.KindOf(classified) != domain.KindTransient || ctx.Err() != nil {
			return openai.ImageResponse{}, backoff.Permanent(classified)
		}
		if g.onRetry != nil {
			g.onRetry(op, attempt, err)
		}
		return openai.ImageResponse{}, classified
	}, policy)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = classifyError(op, err)
		}
		return openai.ImageResponse{}, err
	}
	return resp, nil
}

func firstAsset(resp openai.ImageResponse, op string) (*Asset, error) {
	if len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].URL) == "" {
		return nil, domain.NewProvider(domain.KindProvider, failureMessage(op), http.StatusBadGateway, errors.New("provider returned no image url"))
	}
	return &Asset{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

func failureMessage(op string) string {
	if op == operationEdit {
		return msgEditFailed
	}
	return msgGenerateFailed
}

// classifyError maps go-openai and transport errors onto domain kinds.
func classifyError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(fmt.Sprint(apiErr.Code))
		typ := strings.ToLower(apiErr.Type)
		switch {
		case code == contentPolicyCode || typ == contentPolicyCode:
			return domain.NewProvider(domain.KindContentPolicy, msgContentPolicy, apiErr.HTTPStatusCode, err)
		case code == billingHardLimit || code == insufficientQuota || code == billingNotActive || typ == insufficientQuota:
			return domain.NewProvider(domain.KindBilling, msgBilling, apiErr.HTTPStatusCode, err)
		case isTransientStatus(apiErr.HTTPStatusCode):
			return domain.NewProvider(domain.KindTransient, failureMessage(op), apiErr.HTTPStatusCode, err)
		default:
			return domain.NewProvider(domain.KindProvider, failureMessage(op), apiErr.HTTPStatusCode, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := domain.KindProvider
		if isTransientStatus(reqErr.HTTPStatusCode) {
			kind = domain.KindTransient
		}
		return domain.NewProvider(kind, failureMessage(op), reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewProvider(domain.KindTransient, failureMessage(op), http.StatusGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewProvider(domain.KindTransient, failureMessage(op), http.StatusBadGateway, err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.NewProvider(domain.KindProvider, failureMessage(op), 0, err)
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= http.StatusInternalServerError
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ Generator = (*OpenAIGenerator)(nil)
