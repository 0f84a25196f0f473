package script

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	tpcontext "github.com/vnykmshr/taskprocessor/pkg/common/context"
	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Schema is the parameter schema for custom tasks.
var Schema = dispatch.Schema{
	"script": dispatch.String,
}

// Error kinds a script may report through its "error" key.
const (
	KindNull    = "null"
	KindIndex   = "index"
	KindIO      = "io"
	KindClass   = "class"
	KindIllegal = "illegal"
	KindTimeout = "timeout"
	KindType    = "type"
	KindNumber  = "number"
	KindUnknown = "unknown"
)

var kindDescriptions = map[string]string{
	KindNull:    "nil value",
	KindIndex:   "index out of range",
	KindIO:      "i/o error",
	KindClass:   "invalid cast",
	KindIllegal: "illegal argument",
	KindTimeout: "operation timed out",
	KindType:    "type mismatch",
	KindNumber:  "malformed number",
	KindUnknown: "script error",
}

// maxDepth bounds how deeply nested a returned table is converted. Deeper
// levels, including self-referencing tables, are kept as their string form.
const maxDepth = 32

// maxRepeat bounds the length of a string.rep result.
const maxRepeat = 16 << 20

// Config tunes the Lua sandbox.
type Config struct {
	// CallStackSize bounds recursion depth. Default 256.
	CallStackSize int

	// RegistryMaxSize bounds the Lua value stack. Default 256k slots.
	RegistryMaxSize int

	Logger *zap.Logger
}

// Processor runs custom tasks.
type Processor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a script processor.
func New(cfg Config) *Processor {
	if cfg.CallStackSize <= 0 {
		cfg.CallStackSize = 256
	}
	if cfg.RegistryMaxSize <= 0 {
		cfg.RegistryMaxSize = 256 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, logger: logger.Named("script")}
}

// Register binds the custom task type to a fresh script processor.
func Register(reg *dispatch.Registry, cfg Config) error {
	p := New(cfg)
	return reg.Register(task.TypeCustom, Schema, func() dispatch.Capability { return p })
}

// Process implements dispatch.Capability. It never panics.
func (p *Processor) Process(ctx context.Context, t *task.Task) (res task.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("script runtime panicked", zap.String("task_id", t.ID), zap.Any("panic", r))
			res = task.ClassifiedFailure(t.ID, KindUnknown, fmt.Sprintf("script runtime panic: %v", r))
		}
	}()

	src, _ := t.Parameters["script"].(string)
	if strings.TrimSpace(src) == "" {
		return task.ClassifiedFailure(t.ID, KindIllegal, "script is empty")
	}
	taskID := t.ID
	if id, ok := t.Parameters["task_id"].(string); ok && id != "" {
		taskID = id
	}

	L := p.newState(t.ID)
	defer L.Close()
	L.SetContext(ctx)

	fn, err := L.LoadString(src)
	if err != nil {
		return task.ClassifiedFailure(t.ID, KindIllegal, fmt.Sprintf("script does not compile: %v", err))
	}

	args := []lua.LValue{paramsTable(L, t.Parameters), lua.LString(taskID)}
	ret, err := call(L, fn, args)
	if err == nil {
		if next, ok := ret.(*lua.LFunction); ok {
			ret, err = call(L, next, args)
		}
	}
	if err != nil {
		if tpcontext.IsTimedOut(ctx) {
			return task.Timeout(t.ID)
		}
		if ctx.Err() != nil {
			return task.Failure(t.ID, ctx.Err())
		}
		p.logger.Debug("script raised an error", zap.String("task_id", t.ID), zap.Error(err))
		return task.ClassifiedFailure(t.ID, KindUnknown, err.Error())
	}
	return interpret(t.ID, ret)
}

func (p *Processor) newState(taskID string) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       p.cfg.CallStackSize,
		RegistrySize:        1024,
		RegistryMaxSize:     p.cfg.RegistryMaxSize,
		RegistryGrowStep:    128,
		MinimizeStackMemory: true,
	})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "require", "module", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	if str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		str.RawSetString("rep", L.NewFunction(boundedRep))
	}

	logger := p.logger.With(zap.String("task_id", taskID))
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Info(strings.Join(parts, "\t"))
		return 0
	}))
	return L
}

// boundedRep is string.rep with a cap on the result size.
func boundedRep(L *lua.LState) int {
	s := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || s == "" {
		L.Push(lua.LString(""))
		return 1
	}
	if len(s) > maxRepeat/n {
		L.RaiseError("string.rep result exceeds %d bytes", maxRepeat)
		return 0
	}
	L.Push(lua.LString(strings.Repeat(s, n)))
	return 1
}

func call(L *lua.LState, fn *lua.LFunction, args []lua.LValue) (lua.LValue, error) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// interpret turns a script's return value into a Result.
func interpret(taskID string, ret lua.LValue) task.Result {
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return task.Success(taskID, map[string]any{"result": toGo(ret, 0)})
	}

	if errName := tbl.RawGetString("error"); errName != lua.LNil {
		kind := classify(lua.LVAsString(errName))
		desc := kindDescriptions[kind]
		if d := lua.LVAsString(tbl.RawGetString("description")); d != "" {
			desc += ": " + d
		}
		return task.ClassifiedFailure(taskID, kind, desc)
	}
	if tbl.RawGetString("timeout") != lua.LNil {
		return task.Timeout(taskID)
	}

	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = toGo(v, 1)
	})
	return task.Success(taskID, out)
}

func classify(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "null", "nil", "none":
		return KindNull
	case KindIndex, KindIO, KindClass, KindIllegal, KindTimeout, KindType, KindNumber:
		return strings.ToLower(strings.TrimSpace(name))
	default:
		return KindUnknown
	}
}

// toGo converts Lua values to output values. Sequences become []any,
// other tables map[string]any, and functions or userdata their string form.
// NaN and the infinities become "NaN", "+Inf" and "-Inf" so every output
// encodes as JSON.
func toGo(v lua.LValue, depth int) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if depth >= maxDepth {
			return val.String()
		}
		if n := val.Len(); n > 0 && isSequence(val, n) {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, toGo(val.RawGetInt(i), depth+1))
			}
			return list
		}
		m := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			m[k.String()] = toGo(item, depth+1)
		})
		return m
	default:
		return v.String()
	}
}

func isSequence(t *lua.LTable, n int) bool {
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })
	return count == n
}

// paramsTable exposes task parameters to the script, without the script itself.
func paramsTable(L *lua.LState, params map[string]any) *lua.LTable {
	tbl := L.NewTable()
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "script" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		tbl.RawSetString(k, toLua(L, params[k]))
	}
	return tbl
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case map[string]any:
		return mapTable(L, val)
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLua(L, item))
		}
		return tbl
	}
	if f, ok := dispatch.AsFloat(v); ok {
		return lua.LNumber(f)
	}
	return lua.LString(fmt.Sprint(v))
}

func mapTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		tbl.RawSetString(k, toLua(L, v))
	}
	return tbl
}
