package image

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// RandomTask builds a task of the given image type over a random image no
// larger than maxDim on either side. Priorities fall in [-2, 14] so every
// tier sees traffic.
func RandomTask(rng *rand.Rand, typ task.Type, maxDim int) (*task.Task, error) {
	if maxDim <= 0 {
		maxDim = 64
	}
	width := 1 + rng.Intn(maxDim)
	height := 1 + rng.Intn(maxDim)
	data := make([]byte, width*height*BytesPerPixel)
	rng.Read(data)
	priority := rng.Intn(17) - 2

	params := map[string]any{
		"data":   data,
		"width":  width,
		"height": height,
	}
	switch typ {
	case task.TypeScale:
		params["scale"] = 0.1 + rng.Float64()*1.9
	case task.TypeCompress:
		params["algorithm"] = algorithms[rng.Intn(len(algorithms))]
	case task.TypeDecompress:
		algorithm := algorithms[rng.Intn(len(algorithms))]
		var buf bytes.Buffer
		w, err := newWriter(algorithm, &buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		params["data"] = buf.Bytes()
		params["algorithm"] = algorithm
	default:
		return nil, fmt.Errorf("image: cannot generate %q tasks", typ)
	}
	return task.New(typ, params, priority), nil
}

var algorithms = []string{Gzip, Zlib, Flate}
