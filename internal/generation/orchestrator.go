// Package generation runs one generation attempt and classifies its failure.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/maauso/veo-studio/internal/generator"
	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/video"
)

// Kind classifies a generation failure.
type Kind string

const (
	// KindAuthorization means the credential is invalid or lacks permission.
	KindAuthorization Kind = "AUTHORIZATION"
	// KindNotFound means the requested model or entity does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindGeneric is any other failure.
	KindGeneric Kind = "GENERIC"
)

// User-facing failure messages.
const (
	MessageNotFound      = "Model not found. Please check your API key."
	MessageAuthorization = "Your API key is invalid or lacks permissions."
	messageGenericPrefix = "Video generation failed: "
)

// Substrings recognized when the backend gives no structured code.
const (
	markerNotFound         = "Requested entity was not found."
	markerKeyInvalid       = "API_KEY_INVALID"
	markerPermissionDenied = "permission denied"
)

// Failure is a classified generation error.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NeedsCredential reports whether the user should be asked for a new key.
func (f *Failure) NeedsCredential() bool {
	return f.Kind == KindAuthorization || f.Kind == KindNotFound
}

// Classify maps err to a Failure. A structured backend code wins over the
// message text.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var re *generator.RemoteError
	if errors.As(err, &re) {
		switch re.Code {
		case generator.CodeUnauthenticated, generator.CodePermissionDenied:
			return &Failure{Kind: KindAuthorization, Message: MessageAuthorization, Err: err}
		case generator.CodeNotFound:
			return &Failure{Kind: KindNotFound, Message: MessageNotFound, Err: err}
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, markerNotFound):
		return &Failure{Kind: KindNotFound, Message: MessageNotFound, Err: err}
	case strings.Contains(msg, markerKeyInvalid),
		strings.Contains(strings.ToLower(msg), markerPermissionDenied):
		return &Failure{Kind: KindAuthorization, Message: MessageAuthorization, Err: err}
	default:
		return &Failure{Kind: KindGeneric, Message: messageGenericPrefix + msg, Err: err}
	}
}

// Orchestrator executes one request against a Generator. It never persists
// and never retries.
type Orchestrator struct {
	gen     generator.Generator
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an Orchestrator over gen.
func NewOrchestrator(gen generator.Generator, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{gen: gen, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run generates a video for req. Failures are returned as *Failure.
func (o *Orchestrator) Run(ctx context.Context, req video.Request) (video.Result, error) {
	start := o.now()
	res, err := o.gen.Generate(ctx, req)
	elapsed := o.now().Sub(start)

	if err != nil {
		f := Classify(err)
		o.metrics.ObserveGeneration(outcome(f.Kind), elapsed)
		o.logger.Error("generation failed",
			slog.String("kind", string(f.Kind)),
			slog.String("mode", string(req.Mode)),
			slog.String("error", err.Error()),
		)
		return video.Result{}, f
	}

	o.metrics.ObserveGeneration(metrics.OutcomeSuccess, elapsed)
	o.logger.Info("generation succeeded",
		slog.String("mode", string(req.Mode)),
		slog.Int("bytes", len(res.Payload)),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

func outcome(k Kind) string {
	switch k {
	case KindAuthorization:
		return metrics.OutcomeAuthorization
	case KindNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeGeneric
	}
}
