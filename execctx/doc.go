// Package execctx describes the environment jobs run in: library search
// path entries, environment variables and opaque per-tool settings (fsl,
// spm, freesurfer, ...).
//
// The engine hands Environ to each job. Callers running processes in the
// current process use Enter and Exit instead:
//
//	scope, err := ctx.Enter()
//	if err != nil {
//	    return err
//	}
//	defer scope.Exit()
package execctx
