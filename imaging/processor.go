// Package imaging shrinks oversized images below a byte ceiling by
// iterative JPEG re-encoding.
package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/eringen/arya/errs"
)

const (
	DefaultCeiling = 10 << 20 // 10MB
	MaxDimension   = 4096
	MaxPixels      = 16 * 1024 * 1024
	MaxAttempts    = 8

	initialQuality = 90
	qualityStep    = 10
	minQuality     = 30
	rescueQuality  = 70
	rescueWidth    = 800
	rescueScale    = 0.8
)

// Stage names a progress checkpoint.
type Stage string

const (
	StageAnalyzing   Stage = "analyzing"
	StageCompressing Stage = "compressing"
	StageFinalizing  Stage = "finalizing"
	StageCompleted   Stage = "completed"
)

// Progress is one checkpoint report. Attempt is set while compressing.
type Progress struct {
	Stage   Stage `json:"stage"`
	Percent int   `json:"percent"`
	Attempt int   `json:"attempt,omitempty"`
}

// ProgressFunc receives progress checkpoints. It may be nil.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(stage Stage, percent, attempt int) {
	if f != nil {
		f(Progress{Stage: stage, Percent: percent, Attempt: attempt})
	}
}

// Encoder writes img at quality (1-100).
type Encoder func(w io.Writer, img image.Image, quality int) error

// EncodeJPEG is the default Encoder.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Result describes the processor output.
type Result struct {
	Data         []byte
	Format       string // "jpeg" after re-encoding, else the sniffed input format
	OriginalSize int
	Width        int
	Height       int
	Attempts     int
	Quality      int
	Compressed   bool
}

// Processor holds the ceiling and the encoder.
type Processor struct {
	ceiling int
	encode  Encoder
	logger  *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithCeiling sets the byte ceiling.
func WithCeiling(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.ceiling = n
		}
	}
}

// WithEncoder replaces the JPEG encoder.
func WithEncoder(e Encoder) Option {
	return func(p *Processor) {
		if e != nil {
			p.encode = e
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor returns a Processor with a 10MB ceiling.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{ceiling: DefaultCeiling, encode: EncodeJPEG, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ceiling returns the configured byte ceiling.
func (p *Processor) Ceiling() int { return p.ceiling }

// Process returns data unchanged when it fits the ceiling. Otherwise it
// decodes, clamps and re-encodes as JPEG at falling quality until the
// output fits or MaxAttempts is reached, and returns the smallest encoding.
// Still exceeding the ceiling is not an error.
func (p *Processor) Process(ctx context.Context, data []byte, progress ProgressFunc) (*Result, error) {
	if len(data) <= p.ceiling {
		res := &Result{Data: data, OriginalSize: len(data)}
		if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			res.Format, res.Width, res.Height = format, cfg.Width, cfg.Height
		}
		progress.report(StageCompleted, 100, 0)
		return res, nil
	}

	progress.report(StageAnalyzing, 10, 0)
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.EncodingFailed, "decode image", err)
	}
	bounds := src.Bounds()
	if format == "gif" {
		// Re-encoding would drop animation frames.
		p.logger.Info("oversized gif left unchanged", zap.Int("size", len(data)))
		progress.report(StageCompleted, 100, 0)
		return &Result{Data: data, Format: format, OriginalSize: len(data), Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	w, h := ClampSize(bounds.Dx(), bounds.Dy())
	img := flatten(src, w, h)

	var (
		best     []byte
		bestW    int
		bestH    int
		bestQ    int
		attempts int
		quality  = initialQuality
		rescued  bool
	)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Timeout, "image compression cancelled", err)
		}
		var buf bytes.Buffer
		if err := p.encode(&buf, img, quality); err != nil {
			return nil, errs.Wrap(errs.EncodingFailed, "encode jpeg", err)
		}
		attempts = attempt
		progress.report(StageCompressing, 30+attempt*50/MaxAttempts, attempt)
		p.logger.Debug("compression attempt",
			zap.Int("attempt", attempt),
			zap.Int("quality", quality),
			zap.Int("width", w),
			zap.Int("size", buf.Len()))

		if best == nil || buf.Len() < len(best) {
			best, bestW, bestH, bestQ = buf.Bytes(), w, h, quality
		}
		if buf.Len() <= p.ceiling {
			break
		}

		quality -= qualityStep
		if quality < minQuality && w > rescueWidth && !rescued {
			rescued = true
			w = int(float64(w) * rescueScale)
			h = max(1, int(float64(h)*rescueScale))
			img = flatten(img, w, h)
			quality = rescueQuality
		}
		if quality < 1 {
			quality = 1
		}
	}

	progress.report(StageFinalizing, 90, 0)
	if len(best) > p.ceiling {
		p.logger.Warn("image still above ceiling after compression",
			zap.Int("size", len(best)), zap.Int("ceiling", p.ceiling))
	}
	progress.report(StageCompleted, 100, 0)
	return &Result{
		Data:         best,
		Format:       "jpeg",
		OriginalSize: len(data),
		Width:        bestW,
		Height:       bestH,
		Attempts:     attempts,
		Quality:      bestQ,
		Compressed:   true,
	}, nil
}

// ClampSize scales w x h down proportionally so that neither side exceeds
// MaxDimension and the area stays within MaxPixels.
func ClampSize(w, h int) (int, int) {
	if w > MaxDimension {
		h = h * MaxDimension / w
		w = MaxDimension
	}
	if h > MaxDimension {
		w = w * MaxDimension / h
		h = MaxDimension
	}
	if area := w * h; area > MaxPixels {
		f := math.Sqrt(float64(MaxPixels) / float64(area))
		w = int(float64(w) * f)
		h = int(float64(h) * f)
	}
	return max(1, w), max(1, h)
}

// flatten draws src scaled to w x h over an opaque white background.
func flatten(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
