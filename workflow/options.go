package workflow

import (
	"maps"

	"github.com/kbukum/capsule/logger"
)

type options struct {
	executionID   string
	label         string
	scratchRoot   string
	transferRoots []string
	directoryJobs bool
	env           map[string]string
	cwd           string
	log           *logger.Logger
}

// Option configures Compile.
type Option func(*options)

// WithExecutionID sets the execution identifier instead of a random UUID.
func WithExecutionID(id string) Option {
	return func(o *options) { o.executionID = id }
}

// WithLabel sets the human readable workflow label.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithScratchRoot sets the directory receiving temporary paths. It
// defaults to a per-execution directory under os.TempDir.
func WithScratchRoot(dir string) Option {
	return func(o *options) { o.scratchRoot = dir }
}

// WithTransferRoots lists the directories whose paths must be transferred
// to and from remote resources.
func WithTransferRoots(roots ...string) Option {
	return func(o *options) { o.transferRoots = append(o.transferRoots, roots...) }
}

// WithDirectoryJobs adds a job creating output directories that every
// process job waits for.
func WithDirectoryJobs() Option {
	return func(o *options) { o.directoryJobs = true }
}

// WithEnv adds environment variables to every job.
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		if o.env == nil {
			o.env = make(map[string]string, len(env))
		}
		maps.Copy(o.env, env)
	}
}

// WithWorkingDir sets the working directory of every job.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.cwd = dir }
}

// WithLogger sets the compiler logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}
