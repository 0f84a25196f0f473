package image

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"

	tpcontext "github.com/vnykmshr/taskprocessor/pkg/common/context"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// BytesPerPixel is the size of one RGB pixel.
const BytesPerPixel = 3

// Algorithm names.
const (
	Gzip  = "gzip"
	Zlib  = "zlib"
	Flate = "flate"
)

// DefaultAlgorithm is used when a task names none.
const DefaultAlgorithm = Gzip

// DefaultMaxPixels caps input and output images at 16M pixels (48 MiB of RGB).
const DefaultMaxPixels = 16 << 20

// readChunk bounds each decompression read so the output buffer grows with
// the data actually produced.
const readChunk = 32 << 10

// Schemas for the three image task types.
var (
	ScaleSchema = dispatch.Schema{
		"data":   dispatch.Bytes,
		"width":  dispatch.Int,
		"height": dispatch.Int,
		"scale":  dispatch.Float,
	}
	CompressSchema = dispatch.Schema{
		"data":   dispatch.Bytes,
		"width":  dispatch.Int,
		"height": dispatch.Int,
	}
	DecompressSchema = CompressSchema
)

// Config holds processor configuration.
type Config struct {
	// MaxPixels bounds width*height of every input and of a scaled output.
	// Larger tasks fail before any buffer is allocated. Default 16M.
	MaxPixels int

	Logger *zap.Logger
}

// Processor handles the image task types.
type Processor struct {
	maxPixels int
	logger    *zap.Logger
}

// New creates a processor from cfg.
func New(cfg Config) *Processor {
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Processor{maxPixels: cfg.MaxPixels, logger: cfg.Logger}
}

// Register binds scale, compress and decompress to one processor.
func Register(reg *dispatch.Registry, cfg Config) error {
	p := New(cfg)
	factory := func() dispatch.Capability { return p }
	if err := reg.Register(task.TypeScale, ScaleSchema, factory); err != nil {
		return err
	}
	if err := reg.Register(task.TypeCompress, CompressSchema, factory); err != nil {
		return err
	}
	return reg.Register(task.TypeDecompress, DecompressSchema, factory)
}

// errInterrupted is returned by the pixel loops once the context is done.
var errInterrupted = errors.New("image: interrupted")

// Process implements dispatch.Capability.
func (p *Processor) Process(ctx context.Context, t *task.Task) task.Result {
	data, _ := t.Parameters["data"].([]byte)
	width, _ := dispatch.AsInt(t.Parameters["width"])
	height, _ := dispatch.AsInt(t.Parameters["height"])
	if width <= 0 || height <= 0 {
		return task.Failure(t.ID, tperrors.NewParameterError("image", "width/height",
			fmt.Sprintf("%dx%d", width, height), "dimensions must be positive"))
	}
	if err := p.checkSize(width, height); err != nil {
		return task.Failure(t.ID, err)
	}

	var (
		out map[string]any
		err error
	)
	switch t.Type {
	case task.TypeScale:
		factor, _ := dispatch.AsFloat(t.Parameters["scale"])
		out, err = p.scale(ctx, data, width, height, factor)
	case task.TypeCompress:
		out, err = p.compress(ctx, algorithmOf(t), data, width, height)
	case task.TypeDecompress:
		out, err = p.decompress(ctx, algorithmOf(t), data, width, height)
	default:
		return task.Failure(t.ID, fmt.Errorf("image: unsupported task type %q", t.Type))
	}

	if errors.Is(err, errInterrupted) {
		if tpcontext.IsTimedOut(ctx) {
			return task.Timeout(t.ID)
		}
		return task.Failure(t.ID, ctx.Err())
	}
	if err != nil {
		p.logger.Warn("image task failed",
			zap.String("task_id", t.ID),
			zap.Stringer("type", t.Type),
			zap.Error(err))
		return task.Failure(t.ID, err)
	}
	return task.Success(t.ID, out)
}

// checkSize rejects images over the pixel limit. The division keeps the
// check free of overflow for any positive width and height.
func (p *Processor) checkSize(width, height int) error {
	if width > p.maxPixels/height {
		return tperrors.NewOperationError("image", "checkSize",
			fmt.Errorf("%w: %dx%d is over the %d pixel limit", tperrors.ErrCapacityExceeded, width, height, p.maxPixels))
	}
	return nil
}

func algorithmOf(t *task.Task) string {
	if a, ok := t.Parameters["algorithm"].(string); ok && a != "" {
		return strings.ToLower(strings.TrimSpace(a))
	}
	return DefaultAlgorithm
}

// scale resizes with nearest-neighbour sampling.
func (p *Processor) scale(ctx context.Context, data []byte, width, height int, factor float64) (map[string]any, error) {
	if len(data) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("image: data is %d bytes, want %d for %dx%d", len(data), width*height*BytesPerPixel, width, height)
	}
	if factor <= 0 {
		return nil, fmt.Errorf("image: scale must be positive, got %v", factor)
	}
	if math.IsInf(factor, 0) || math.IsNaN(factor) {
		return nil, fmt.Errorf("image: scale must be finite, got %v", factor)
	}
	// Bound the target in float space before converting, so huge factors
	// neither overflow int nor reach the allocator.
	fw := math.Floor(float64(width) * factor)
	fh := math.Floor(float64(height) * factor)
	if fw*fh > float64(p.maxPixels) {
		return nil, tperrors.NewOperationError("image", "scale",
			fmt.Errorf("%w: scale %v turns %dx%d into %.0fx%.0f, over the %d pixel limit",
				tperrors.ErrCapacityExceeded, factor, width, height, fw, fh, p.maxPixels))
	}
	newW, newH := int(fw), int(fh)
	if newW <= 0 || newH <= 0 {
		return nil, fmt.Errorf("image: scale %v collapses %dx%d to nothing", factor, width, height)
	}
	if err := p.checkSize(newW, newH); err != nil {
		return nil, err
	}

	out := make([]byte, newW*newH*BytesPerPixel)
	for y := 0; y < newH; y++ {
		if tpcontext.IsCanceled(ctx) {
			return nil, errInterrupted
		}
		srcY := y * height / newH
		for x := 0; x < newW; x++ {
			srcX := x * width / newW
			src := (srcY*width + srcX) * BytesPerPixel
			dst := (y*newW + x) * BytesPerPixel
			copy(out[dst:dst+BytesPerPixel], data[src:src+BytesPerPixel])
		}
	}
	return map[string]any{
		"scaled_image": out,
		"width":        newW,
		"height":       newH,
	}, nil
}

func (p *Processor) compress(ctx context.Context, algorithm string, data []byte, width, height int) (map[string]any, error) {
	var buf bytes.Buffer
	w, err := newWriter(algorithm, &buf)
	if err != nil {
		return nil, err
	}
	rowBytes := width * BytesPerPixel
	for off := 0; off < len(data); off += rowBytes {
		if tpcontext.IsCanceled(ctx) {
			return nil, errInterrupted
		}
		end := off + rowBytes
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[off:end]); err != nil {
			return nil, fmt.Errorf("image: %s compress: %w", algorithm, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("image: %s compress: %w", algorithm, err)
	}
	return map[string]any{
		"compressed_image": buf.Bytes(),
		"algorithm":        algorithm,
		"original_size":    len(data),
		"width":            width,
		"height":           height,
	}, nil
}

func (p *Processor) decompress(ctx context.Context, algorithm string, data []byte, width, height int) (map[string]any, error) {
	r, err := newReader(algorithm, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	want := width * height * BytesPerPixel
	var out []byte
	chunk := make([]byte, min(want, readChunk))
	// Read one byte past the expected size to detect oversized payloads.
	limited := io.LimitReader(r, int64(want)+1)
	for {
		if tpcontext.IsCanceled(ctx) {
			return nil, errInterrupted
		}
		n, err := limited.Read(chunk)
		out = append(out, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("image: %s decompress: %w", algorithm, err)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("image: decompressed %d bytes, want %d for %dx%d", len(out), want, width, height)
	}
	return map[string]any{
		"decompressed_image": out,
		"width":              width,
		"height":             height,
	}, nil
}

func newWriter(algorithm string, w io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zlib:
		return zlib.NewWriter(w), nil
	case Flate:
		return flate.NewWriter(w, flate.DefaultCompression)
	default:
		return nil, fmt.Errorf("image: unknown algorithm %q (use gzip, zlib or flate)", algorithm)
	}
}

func newReader(algorithm string, r io.Reader) (io.ReadCloser, error) {
	switch algorithm {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("image: gzip decompress: %w", err)
		}
		return zr, nil
	case Zlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("image: zlib decompress: %w", err)
		}
		return zr, nil
	case Flate:
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("image: unknown algorithm %q (use gzip, zlib or flate)", algorithm)
	}
}
