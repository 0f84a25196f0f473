// Package script runs user-supplied Lua for "custom" tasks.
//
// Each task gets a fresh gopher-lua state with only the base, table, string
// and math libraries. File loading, module loading and garbage-collector
// control are removed, and print writes to the processor's logger.
//
// The chunk is called with (params, task_id). If it returns a function,
// that function is called with the same arguments. The final value decides
// the result:
//
//	{error = "index", description = "..."}  FAILURE with error_kind "index"
//	{timeout = true}                         TIMEOUT
//	{any = "other", fields = 1}              SUCCESS, table becomes the output
//	42                                       SUCCESS, output {"result": 42}
//
// The task's deadline is installed on the Lua state, so runaway scripts end
// with TIMEOUT.
package script
