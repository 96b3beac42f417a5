package features

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/cover-matcher/internal/constants"
	"github.com/kozaktomas/cover-matcher/internal/fingerprint"
	"github.com/kozaktomas/cover-matcher/internal/logging"
	"github.com/kozaktomas/cover-matcher/internal/metrics"
	"github.com/kozaktomas/cover-matcher/internal/vision"
)

// ErrDecode marks image bytes that no registered decoder accepts.
var ErrDecode = errors.New("unable to decode image")

// ErrNoImage is returned for a photo carrying neither bytes nor a URL.
var ErrNoImage = errors.New("photo has no image data or URL")

// Analyzer produces a feature set for a photo.
type Analyzer interface {
	Analyze(ctx context.Context, photo Photo) (*PhotoFeatureSet, error)
}

// Extractor computes feature sets from image bytes. Decode failures never
// escape: they yield the fallback feature set. Vision model failures are
// replaced with neutral values, except context cancellation which is
// returned to the caller.
type Extractor struct {
	model    vision.Model
	fallback *vision.Stub
	fetcher  Fetcher
	logger   *slog.Logger
}

// NewExtractor creates an extractor. A nil model uses the deterministic stub;
// a nil fetcher disables URL-only photos.
func NewExtractor(model vision.Model, fetcher Fetcher, logger *slog.Logger) *Extractor {
	stub := vision.NewStub()
	if model == nil {
		model = stub
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		model:    model,
		fallback: stub,
		fetcher:  fetcher,
		logger:   logging.NewComponentLogger(logger, "extractor"),
	}
}

// Analyze fetches URL-only photos before extracting.
func (e *Extractor) Analyze(ctx context.Context, photo Photo) (*PhotoFeatureSet, error) {
	data := photo.Data
	if len(data) == 0 {
		if photo.URL == "" || e.fetcher == nil {
			return nil, fmt.Errorf("photo %s: %w", photo.ID, ErrNoImage)
		}
		fetched, err := e.fetcher.Fetch(ctx, photo.URL)
		if err != nil {
			return nil, fmt.Errorf("photo %s: %w", photo.ID, err)
		}
		data = fetched
	}
	return e.Extract(ctx, data, photo.Width, photo.Height)
}

// Extract analyzes raw image bytes. declaredWidth and declaredHeight are only
// used for the fallback set and may be zero.
func (e *Extractor) Extract(ctx context.Context, data []byte, declaredWidth, declaredHeight int) (*PhotoFeatureSet, error) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	fs := &PhotoFeatureSet{
		ID:       fingerprint.Content(data),
		ByteSize: len(data),
		Format:   fingerprint.DetectFormat(data),
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		e.logger.Debug("falling back to default features",
			"id", fs.ID,
			"bytes", len(data),
			"error", fmt.Errorf("%w: %w", ErrDecode, err))
		metrics.ExtractionsTotal.WithLabelValues("fallback").Inc()
		return e.fallbackSet(ctx, fs, data, declaredWidth, declaredHeight)
	}
	fs.Format = format

	bounds := img.Bounds()
	fs.Width, fs.Height = bounds.Dx(), bounds.Dy()
	fs.Quality = imageQuality(fs.Width, fs.Height)

	pixels := toNRGBA(img)
	fs.Palette = extractPalette(downsample(pixels, constants.PaletteMaxDimension))

	stats := measureColors(pixels)
	fs.Saturation = stats.saturation
	fs.Brightness = stats.brightness
	fs.Contrast = stats.contrast
	fs.Harmony = harmony(fs.Palette)
	fs.Mood = moodFor(fs.Brightness, fs.Saturation)

	if err := e.detect(ctx, fs, data); err != nil {
		return nil, err
	}

	fs.Confidence = blendConfidence(
		fs.PoseConfidence,
		fs.FaceConfidence,
		fs.ColorQuality(),
		constants.EmbeddingConfidence,
	)

	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	return fs, nil
}

// detect runs the vision model. Only context errors are returned.
func (e *Extractor) detect(ctx context.Context, fs *PhotoFeatureSet, data []byte) error {
	pose, err := e.model.DetectPose(ctx, data)
	if err != nil {
		if isContextErr(ctx, err) {
			return err
		}
		e.visionFailed("pose", fs.ID, err)
		pose = 0.5
	}
	fs.PoseConfidence = clamp01(pose)

	faces, err := e.model.DetectFaces(ctx, data)
	if err != nil {
		if isContextErr(ctx, err) {
			return err
		}
		e.visionFailed("faces", fs.ID, err)
		faces = vision.Faces{Confidence: 0.5}
	}
	fs.FaceCount = faces.Count
	fs.FaceConfidence = clamp01(faces.Confidence)

	emb, err := e.model.Embed(ctx, data)
	if err == nil {
		fs.Embedding = fingerprint.Normalize(append([]float32(nil), emb...))
		return nil
	}
	if isContextErr(ctx, err) {
		return err
	}
	e.visionFailed("embed", fs.ID, err)
	fs.Embedding, err = e.fallback.Embed(ctx, data)
	return err
}

func (e *Extractor) visionFailed(capability, id string, err error) {
	metrics.VisionErrorsTotal.WithLabelValues(capability).Inc()
	e.logger.Warn("vision model failed, using neutral value",
		"capability", capability,
		"model", e.model.Name(),
		"id", id,
		"error", err)
}

// fallbackSet fills the fixed feature set used for undecodable bytes. The
// embedding still derives from the bytes so distinct inputs stay distinct.
func (e *Extractor) fallbackSet(ctx context.Context, fs *PhotoFeatureSet, data []byte, declaredWidth, declaredHeight int) (*PhotoFeatureSet, error) {
	fs.Fallback = true
	fs.Width, fs.Height = constants.FallbackDimension, constants.FallbackDimension
	if declaredWidth > 0 && declaredHeight > 0 {
		fs.Width, fs.Height = declaredWidth, declaredHeight
	}
	fs.Quality = constants.FallbackQuality
	fs.Palette = []Color{}
	fs.Contrast = 0.5
	fs.Harmony = 0.5
	fs.Mood = MoodNeutral
	fs.Confidence = constants.FallbackConfidence

	emb, err := e.fallback.Embed(ctx, data)
	if err != nil {
		return nil, err
	}
	fs.Embedding = emb
	return fs, nil
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
