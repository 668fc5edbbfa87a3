package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// Builtin definitions.
const (
	CopyDefinition = "capsule.builtin.Copy"
	CatDefinition  = "capsule.builtin.Cat"
	EchoDefinition = "capsule.builtin.Echo"
)

func init() {
	Register(CopyDefinition, func() (Process, error) { return NewCopy() })
	Register(CatDefinition, func() (Process, error) { return NewCat() })
	Register(EchoDefinition, func() (Process, error) { return NewEcho() })
}

// NewCopy returns a process copying the file input to the path output.
func NewCopy() (*FuncProcess, error) {
	return NewFunc(CopyDefinition, func(ctx context.Context, c *controller.Controller, env *Env) error {
		src, _ := c.Get("input").(string)
		dst, _ := c.Get("output").(string)
		return concatFiles(ctx, dst, []string{src})
	},
		Field("input", controller.File, controller.Doc("file to copy")),
		Field("output", controller.File, controller.Write(), controller.Doc("destination path")),
	)
}

// NewCat returns a process concatenating inputs into output.
func NewCat() (*FuncProcess, error) {
	return NewFunc(CatDefinition, func(ctx context.Context, c *controller.Controller, env *Env) error {
		items, _ := c.Get("inputs").([]any)
		paths := make([]string, 0, len(items))
		for _, item := range items {
			paths = append(paths, fmt.Sprint(item))
		}
		dst, _ := c.Get("output").(string)
		return concatFiles(ctx, dst, paths)
	},
		Field("inputs", controller.ListOf(controller.File)),
		Field("output", controller.File, controller.Write()),
	)
}

// NewEcho returns a process copying value to result and printing it.
func NewEcho() (*FuncProcess, error) {
	return NewFunc(EchoDefinition, func(_ context.Context, c *controller.Controller, env *Env) error {
		v := c.Get("value")
		_, _ = fmt.Fprintln(env.stdout(), v)
		return c.Set("result", v)
	},
		Field("value", controller.Any),
		Field("result", controller.Any, controller.Output()),
	)
}

func concatFiles(ctx context.Context, dst string, srcs []string) error {
	if dst == "" {
		return errors.MissingField("output")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		if err := appendFile(out, src); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

func appendFile(w io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
