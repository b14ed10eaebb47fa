package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/slimtoolkit/hooksensor/pkg/util/errutil"
)

// ExecutionContext is the per-command output and cleanup state of the CLI.
type ExecutionContext struct {
	Out             *Output
	cleanupHandlers []func()
}

func (ref *ExecutionContext) Exit(exitCode int) {
	ref.doCleanup()
	os.Exit(exitCode)
}

func (ref *ExecutionContext) AddCleanupHandler(handler func()) {
	if handler != nil {
		ref.cleanupHandlers = append(ref.cleanupHandlers, handler)
	}
}

// Cleanup runs the cleanup handlers once, newest first.
func (ref *ExecutionContext) Cleanup() {
	ref.doCleanup()
}

func (ref *ExecutionContext) doCleanup() {
	if len(ref.cleanupHandlers) == 0 {
		return
	}

	//call cleanup handlers in reverse order
	for i := len(ref.cleanupHandlers) - 1; i >= 0; i-- {
		cleanup := ref.cleanupHandlers[i]
		if cleanup != nil {
			cleanup()
		}
	}

	ref.cleanupHandlers = nil
}

func (ref *ExecutionContext) FailOn(err error) {
	if err != nil {
		ref.doCleanup()
	}

	errutil.FailOn(err)
}

func NewExecutionContext(cmdName string) *ExecutionContext {
	ref := &ExecutionContext{
		Out: NewOutput(cmdName),
	}

	return ref
}

type Output struct {
	CmdName string
	w       io.Writer
}

func NewOutput(cmdName string) *Output {
	ref := &Output{
		CmdName: cmdName,
		w:       color.Output,
	}

	return ref
}

// SetWriter redirects the output (tests).
func (ref *Output) SetWriter(w io.Writer) {
	ref.w = w
}

func (ref *Output) Writer() io.Writer {
	return ref.w
}

func NoColor() {
	color.NoColor = true
}

type OutVars map[string]interface{}

var (
	itcolor = color.New(color.FgMagenta, color.Bold).SprintFunc()
	kcolor  = color.New(color.FgHiGreen, color.Bold).SprintFunc()
	vcolor  = color.New(color.FgHiBlue).SprintfFunc()
	ecolor  = color.New(color.FgHiRed).SprintfFunc()
	mcolor  = color.New(color.FgHiMagenta).SprintfFunc()
	scolor  = color.New(color.FgCyan, color.Bold).SprintfFunc()
	xcolor  = color.New(color.FgHiRed, color.Bold).SprintfFunc()
)

func sortedKeys(kvSet OutVars) []string {
	keys := make([]string, 0, len(kvSet))
	for k := range kvSet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ref *Output) Error(errType string, data string) {
	fmt.Fprintln(ref.w, ecolor("cmd=%s error=%s message='%s'", ref.CmdName, errType, data))
}

func (ref *Output) Message(data string) {
	fmt.Fprintln(ref.w, mcolor("cmd=%s message='%s'", ref.CmdName, data))
}

func (ref *Output) State(state string, params ...OutVars) {
	var exitInfo string
	var info string
	var sep string

	if len(params) > 0 {
		var minCount int
		kvSet := params[0]
		if exitCode, ok := kvSet["exit.code"]; ok {
			minCount = 1
			exitInfo = fmt.Sprintf(" code=%d", exitCode)
		}

		if len(kvSet) > minCount {
			var builder strings.Builder
			sep = " "

			for _, k := range sortedKeys(kvSet) {
				if k == "exit.code" {
					continue
				}

				builder.WriteString(k)
				builder.WriteString("=")
				builder.WriteString(fmt.Sprintf("%v", kvSet[k]))
				builder.WriteString(" ")
			}

			info = builder.String()
		}
	}

	paint := scolor
	if state == "exited" || state == "stopped" {
		paint = xcolor
	}

	fmt.Fprintln(ref.w, paint("cmd=%s state=%s%s%s%s", ref.CmdName, state, exitInfo, sep, info))
}

func (ref *Output) Info(infoType string, params ...OutVars) {
	var data string
	var sep string

	if len(params) > 0 {
		kvSet := params[0]
		if len(kvSet) > 0 {
			var builder strings.Builder
			sep = " "

			for _, k := range sortedKeys(kvSet) {
				builder.WriteString(kcolor(k))
				builder.WriteString("=")
				builder.WriteString(fmt.Sprintf("'%s'", vcolor("%v", kvSet[k])))
				builder.WriteString(" ")
			}

			data = builder.String()
		}
	}

	fmt.Fprintf(ref.w, "cmd=%s info=%s%s%s\n", ref.CmdName, itcolor(infoType), sep, data)
}
