package ffmpeg

import (
	"strings"
)

// Command is a structured ffmpeg argument list. Arguments are never passed
// through a shell.
type Command struct {
	globals []string
	inputs  []input
	filters []string
	complex string
	outArgs []string
	output  string
}

type input struct {
	opts []string
	path string
}

// New starts a command with banner suppression and overwrite enabled.
func New() *Command {
	return &Command{globals: []string{"-hide_banner", "-nostdin", "-y"}}
}

// Global appends options placed before the first input.
func (c *Command) Global(args ...string) *Command {
	c.globals = append(c.globals, args...)
	return c
}

// Input adds an input with options that apply to it (e.g. -loop 1).
func (c *Command) Input(path string, opts ...string) *Command {
	c.inputs = append(c.inputs, input{opts: append([]string(nil), opts...), path: path})
	return c
}

// VideoFilter appends filters to the -vf chain.
func (c *Command) VideoFilter(filters ...string) *Command {
	for _, f := range filters {
		if f != "" {
			c.filters = append(c.filters, f)
		}
	}
	return c
}

// FilterComplex sets the -filter_complex graph.
func (c *Command) FilterComplex(graph string) *Command {
	c.complex = graph
	return c
}

// Out appends output options (codecs, maps, durations).
func (c *Command) Out(args ...string) *Command {
	c.outArgs = append(c.outArgs, args...)
	return c
}

// Output sets the destination path.
func (c *Command) Output(path string) *Command {
	c.output = path
	return c
}

func (c *Command) OutputPath() string { return c.output }

// Args renders the argument vector.
func (c *Command) Args() []string {
	args := append([]string(nil), c.globals...)
	for _, in := range c.inputs {
		args = append(args, in.opts...)
		args = append(args, "-i", in.path)
	}
	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}
	if c.complex != "" {
		args = append(args, "-filter_complex", c.complex)
	}
	args = append(args, c.outArgs...)
	if c.output != "" {
		args = append(args, c.output)
	}
	return args
}

// String is for logs only.
func (c *Command) String() string {
	parts := c.Args()
	for i, p := range parts {
		if strings.ContainsAny(p, " '\"") {
			parts[i] = "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
		}
	}
	return "ffmpeg " + strings.Join(parts, " ")
}

// ProbeDurationArgs returns the ffprobe arguments printing the container
// duration in seconds.
func ProbeDurationArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// EscapeFilterPath escapes a path for use inside a quoted filter option
// (e.g. ass='...'). Filter strings treat backslashes, colons and single
// quotes specially.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
