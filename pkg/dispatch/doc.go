// Package dispatch maps task types to the capabilities that process them.
//
// Each registered type carries a Schema naming its required parameters and
// their kinds. Resolve checks a task against the schema before building the
// capability, so a task with a missing or mistyped parameter never reaches
// Process:
//
//	reg := dispatch.NewRegistry()
//	reg.MustRegister(task.TypeScale, dispatch.Schema{
//		"data":  dispatch.Bytes,
//		"width": dispatch.Int,
//	}, func() dispatch.Capability { return scaler })
//
//	capability, err := reg.Resolve(t)
//	if err != nil {
//		// *errors.ValidationError or *errors.OperationError
//	}
//	res := capability.Process(ctx, t)
//
// A Registry is safe for concurrent use; registration normally happens once
// at startup.
package dispatch
