package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"promptbatch/core"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return core.ExitCodeSuccess
	}

	var exit *exitError
	if errors.As(err, &exit) {
		switch {
		case exit.err != nil:
			printError(stderr, exit.err)
		case core.IsSignalExit(exit.code):
			color.New(color.FgYellow).Fprintf(stderr, "Stopped: %s\n", core.ExitCodeName(exit.code))
		}
		return exit.code
	}
	printError(stderr, err)
	if _, ok := core.IsConfigError(err); ok {
		return core.ExitCodeConfig
	}
	return core.ExitCodeError
}

// exitError carries a specific exit code. A nil err prints nothing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return core.ExitCodeName(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprint(w, "Error: ")
	fmt.Fprintln(w, err)
}
