// Package process defines the executable unit of a pipeline and the
// subprocess runner used to execute command-line tools.
//
// A Process owns a controller.Controller holding its parameters and runs
// with Execute. Processes are created by definition string through a
// Registry:
//
//	process.Register("my.tools.Smooth", func() (process.Process, error) {
//	    return process.NewCommand("my.tools.Smooth",
//	        []string{"smooth", "-i", "{input}", "-o", "{output}", "-s", "{sigma}"},
//	        process.Field("input", controller.File),
//	        process.Field("sigma", controller.Float, controller.Default(2.0)),
//	        process.Field("output", controller.File, controller.Write()),
//	    )
//	})
//
// Run executes a subprocess in its own process group and captures its
// output. Context cancellation sends SIGTERM to the group, then SIGKILL
// after a grace period.
package process
