package image

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/taskprocessor/internal/testutil"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

func rgb(width, height int) []byte {
	data := make([]byte, width*height*BytesPerPixel)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestScaleDimensions(t *testing.T) {
	p := New(Config{})
	tests := []struct {
		name          string
		width, height int
		factor        float64
		wantW, wantH  int
	}{
		{"double", 4, 3, 2.0, 8, 6},
		{"half", 10, 6, 0.5, 5, 3},
		{"identity", 7, 5, 1.0, 7, 5},
		{"truncates", 3, 3, 1.5, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := task.New(task.TypeScale, map[string]any{
				"data": rgb(tt.width, tt.height), "width": tt.width, "height": tt.height, "scale": tt.factor,
			}, 5)
			res := p.Process(context.Background(), tk)
			testutil.AssertEqual(t, res.Status, task.StatusSuccess)
			testutil.AssertEqual(t, res.Output["width"].(int), tt.wantW)
			testutil.AssertEqual(t, res.Output["height"].(int), tt.wantH)
			testutil.AssertEqual(t, len(res.Output["scaled_image"].([]byte)), tt.wantW*tt.wantH*BytesPerPixel)
		})
	}
}

func TestScaleNearestNeighbour(t *testing.T) {
	// 2x1 image: red, blue.
	data := []byte{255, 0, 0, 0, 0, 255}
	tk := task.New(task.TypeScale, map[string]any{
		"data": data, "width": 2, "height": 1, "scale": 2.0,
	}, 5)
	res := New(Config{}).Process(context.Background(), tk)
	testutil.AssertEqual(t, res.Status, task.StatusSuccess)

	want := []byte{
		255, 0, 0, 255, 0, 0, 0, 0, 255, 0, 0, 255,
		255, 0, 0, 255, 0, 0, 0, 0, 255, 0, 0, 255,
	}
	if got := res.Output["scaled_image"].([]byte); !bytes.Equal(got, want) {
		t.Fatalf("scaled pixels = %v, want %v", got, want)
	}
}

func TestScaleRejectsBadInput(t *testing.T) {
	p := New(Config{})
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"short data", map[string]any{"data": []byte{1, 2}, "width": 2, "height": 2, "scale": 1.0}},
		{"zero scale", map[string]any{"data": rgb(2, 2), "width": 2, "height": 2, "scale": 0.0}},
		{"collapses", map[string]any{"data": rgb(2, 2), "width": 2, "height": 2, "scale": 0.1}},
		{"zero width", map[string]any{"data": []byte{}, "width": 0, "height": 2, "scale": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Process(context.Background(), task.New(task.TypeScale, tt.params, 5))
			testutil.AssertEqual(t, res.Status, task.StatusFailure)
			testutil.AssertNotEqual(t, res.Err(), "")
		})
	}
}

func TestOversizedImagesFailBeforeAllocating(t *testing.T) {
	var compressed bytes.Buffer
	w, err := newWriter(Gzip, &compressed)
	testutil.AssertNoError(t, err)
	_, err = w.Write(rgb(1, 1))
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Close())

	tests := []struct {
		name   string
		typ    task.Type
		params map[string]any
	}{
		{"huge scale factor", task.TypeScale, map[string]any{
			"data": rgb(1, 1), "width": 1, "height": 1, "scale": 2e6,
		}},
		{"infinite scale factor", task.TypeScale, map[string]any{
			"data": rgb(1, 1), "width": 1, "height": 1, "scale": math.Inf(1),
		}},
		{"huge decompress dimensions", task.TypeDecompress, map[string]any{
			"data": compressed.Bytes(), "width": 1_000_000, "height": 1_000_000,
		}},
		{"dimensions overflowing int", task.TypeCompress, map[string]any{
			"data": rgb(1, 1), "width": math.MaxInt / 2, "height": math.MaxInt / 2,
		}},
	}

	p := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Process(context.Background(), task.New(tt.typ, tt.params, 5))
			testutil.AssertEqual(t, res.Status, task.StatusFailure)
			testutil.AssertNotEqual(t, res.Err(), "")
		})
	}
}

func TestMaxPixelsIsConfigurable(t *testing.T) {
	p := New(Config{MaxPixels: 16})

	res := p.Process(context.Background(), task.New(task.TypeCompress, map[string]any{
		"data": rgb(4, 4), "width": 4, "height": 4,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusSuccess)

	res = p.Process(context.Background(), task.New(task.TypeCompress, map[string]any{
		"data": rgb(5, 4), "width": 5, "height": 4,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
	if !strings.Contains(res.Err(), tperrors.ErrCapacityExceeded.Error()) {
		t.Errorf("error %q should mention the capacity limit", res.Err())
	}

	// The scaled output is held to the same limit.
	res = p.Process(context.Background(), task.New(task.TypeScale, map[string]any{
		"data": rgb(4, 4), "width": 4, "height": 4, "scale": 2.0,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	p := New(Config{})
	for _, algorithm := range []string{Gzip, Zlib, Flate} {
		t.Run(algorithm, func(t *testing.T) {
			data := rgb(16, 9)
			res := p.Process(context.Background(), task.New(task.TypeCompress, map[string]any{
				"data": data, "width": 16, "height": 9, "algorithm": algorithm,
			}, 5))
			testutil.AssertEqual(t, res.Status, task.StatusSuccess)
			testutil.AssertEqual(t, res.Output["algorithm"].(string), algorithm)
			testutil.AssertEqual(t, res.Output["original_size"].(int), len(data))

			compressed := res.Output["compressed_image"].([]byte)
			res = p.Process(context.Background(), task.New(task.TypeDecompress, map[string]any{
				"data": compressed, "width": 16, "height": 9, "algorithm": algorithm,
			}, 5))
			testutil.AssertEqual(t, res.Status, task.StatusSuccess)
			if got := res.Output["decompressed_image"].([]byte); !bytes.Equal(got, data) {
				t.Fatal("round trip changed the pixels")
			}
		})
	}
}

func TestCompressDefaultsToGzip(t *testing.T) {
	res := New(Config{}).Process(context.Background(), task.New(task.TypeCompress, map[string]any{
		"data": rgb(2, 2), "width": 2, "height": 2,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusSuccess)
	testutil.AssertEqual(t, res.Output["algorithm"].(string), Gzip)
}

func TestUnknownAlgorithmFails(t *testing.T) {
	res := New(Config{}).Process(context.Background(), task.New(task.TypeCompress, map[string]any{
		"data": rgb(2, 2), "width": 2, "height": 2, "algorithm": "lzma",
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
}

func TestDecompressSizeMismatch(t *testing.T) {
	p := New(Config{})
	res := p.Process(context.Background(), task.New(task.TypeCompress, map[string]any{
		"data": rgb(4, 4), "width": 4, "height": 4,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusSuccess)

	res = p.Process(context.Background(), task.New(task.TypeDecompress, map[string]any{
		"data": res.Output["compressed_image"], "width": 2, "height": 2,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
}

func TestDecompressGarbage(t *testing.T) {
	res := New(Config{}).Process(context.Background(), task.New(task.TypeDecompress, map[string]any{
		"data": []byte("not gzip"), "width": 1, "height": 1,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
}

func TestExpiredDeadlineTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	res := New(Config{}).Process(ctx, task.New(task.TypeScale, map[string]any{
		"data": rgb(8, 8), "width": 8, "height": 8, "scale": 2.0,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusTimeout)
}

func TestCanceledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(Config{}).Process(ctx, task.New(task.TypeCompress, map[string]any{
		"data": rgb(8, 8), "width": 8, "height": 8,
	}, 5))
	testutil.AssertEqual(t, res.Status, task.StatusFailure)
}

func TestRegisterBindsAllTypes(t *testing.T) {
	reg := dispatch.NewRegistry()
	testutil.AssertNoError(t, Register(reg, Config{}))

	for _, typ := range []task.Type{task.TypeScale, task.TypeCompress, task.TypeDecompress} {
		if _, ok := reg.Schema(typ); !ok {
			t.Errorf("%s not registered", typ)
		}
	}

	_, err := reg.Resolve(task.New(task.TypeScale, map[string]any{"data": rgb(1, 1), "width": 1}, 5))
	if !errors.Is(err, tperrors.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRandomTasksProcess(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	reg := dispatch.NewRegistry()
	testutil.AssertNoError(t, Register(reg, Config{}))

	for _, typ := range []task.Type{task.TypeScale, task.TypeCompress, task.TypeDecompress} {
		for i := 0; i < 10; i++ {
			tk, err := RandomTask(rng, typ, 32)
			testutil.AssertNoError(t, err)
			if p := tk.Priority(); p < -2 || p > 14 {
				t.Fatalf("priority %d out of range", p)
			}

			c, err := reg.Resolve(tk)
			testutil.AssertNoError(t, err)
			res := c.Process(context.Background(), tk)
			// Tiny random images can collapse under a small scale factor.
			if typ == task.TypeScale && res.Status == task.StatusFailure {
				continue
			}
			testutil.AssertEqual(t, res.Status, task.StatusSuccess)
		}
	}

	_, err := RandomTask(rng, task.TypeCustom, 32)
	testutil.AssertError(t, err)
}
