package engine

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/vnykmshr/taskprocessor/pkg/processors/image"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// DemoScript is the Lua submitted by generated custom tasks.
const DemoScript = `
return function(params, id)
	local n = params.n or 6
	local acc = 0
	for i = 1, n do acc = acc + i * 7 / n end
	return { message = "Hello from Lua!", computed = tostring(math.floor(acc + 0.5)), task = id }
end`

// Generator builds random demo tasks. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	maxDim int
}

// NewGenerator seeds a generator. Images are at most maxDim pixels a side.
func NewGenerator(seed int64, maxDim int) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), maxDim: maxDim}
}

// Task builds one task of typ.
func (g *Generator) Task(typ task.Type) (*task.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if typ == task.TypeCustom {
		return task.New(task.TypeCustom, map[string]any{
			"script": DemoScript,
			"n":      1 + g.rng.Intn(12),
		}, g.rng.Intn(17)-2), nil
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("engine: cannot generate %q tasks", typ)
	}
	return image.RandomTask(g.rng, typ, g.maxDim)
}

// Any builds a task of a random type.
func (g *Generator) Any() (*task.Task, error) {
	types := task.Types()
	g.mu.Lock()
	typ := types[g.rng.Intn(len(types))]
	g.mu.Unlock()
	return g.Task(typ)
}
