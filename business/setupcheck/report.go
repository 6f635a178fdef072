package setupcheck

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var separator = strings.Repeat("=", 60)

// Printer writes check results. Colour follows fatih/color, which turns it
// off when NO_COLOR is set or the output is not a terminal.
type Printer struct {
	w      io.Writer
	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	bold   func(a ...any) string
	dim    func(a ...any) string
}

// NewPrinter constructs a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:      w,
		green:  color.New(color.FgGreen).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		bold:   color.New(color.Bold).SprintFunc(),
		dim:    color.New(color.Faint).SprintFunc(),
	}
}

// Header prints the banner.
func (p *Printer) Header() {
	fmt.Fprintf(p.w, "\n%s\n", p.bold(separator+"\n  Workshop Prerequisite Validator\n"+separator))
	fmt.Fprintln(p.w)
}

// Result prints one outcome with its extra lines and, on failure, the hint.
func (p *Printer) Result(r Result) {
	var prefix string
	switch {
	case r.Passed:
		prefix = p.green("✔ PASS")
	case r.Critical:
		prefix = p.red("✘ FAIL")
	default:
		prefix = p.yellow("⚠ WARN")
	}

	fmt.Fprintf(p.w, "  %s  %s\n", prefix, r.Message)

	for _, info := range r.Extra {
		fmt.Fprintf(p.w, "          %s\n", p.dim(info))
	}

	if r.Hint == "" || r.Passed {
		return
	}

	for i, line := range strings.Split(r.Hint, "\n") {
		if i == 0 {
			fmt.Fprintf(p.w, "          %s\n", p.bold("→ "+line))
			continue
		}
		fmt.Fprintf(p.w, "          %s\n", line)
	}
}

// Summary prints the totals and the checks that need attention.
func (p *Printer) Summary(results []Result) {
	var passed, warnings, failures int
	for _, r := range results {
		switch {
		case r.Passed:
			passed++
		case r.Critical:
			failures++
		default:
			warnings++
		}
	}

	var parts []string
	if warnings > 0 {
		parts = append(parts, plural(warnings, "warning"))
	}
	if failures > 0 {
		parts = append(parts, plural(failures, "failure"))
	}

	suffix := ""
	if len(parts) > 0 {
		suffix = " (" + strings.Join(parts, ", ") + ")"
	}

	fmt.Fprintf(p.w, "\n%s\n", p.bold(fmt.Sprintf("%s\n  Summary: %d of %d checks passed%s\n%s", separator, passed, len(results), suffix, separator)))

	if failures > 0 {
		fmt.Fprintf(p.w, "\n  %s\n", p.red(p.bold("Must fix before workshop:")))
		for _, r := range results {
			if r.Failed() {
				fmt.Fprintf(p.w, "    %s %s: %s\n", p.red("✘"), r.Name, firstLine(r.Hint))
			}
		}
	}

	if warnings > 0 {
		fmt.Fprintf(p.w, "\n  %s\n", p.yellow(p.bold("Warnings (needed for some modules):")))
		for _, r := range results {
			if r.Warned() {
				fmt.Fprintf(p.w, "    %s %s: %s\n", p.yellow("⚠"), r.Name, firstLine(r.Hint))
			}
		}
	}

	if failures == 0 && warnings == 0 {
		fmt.Fprintf(p.w, "\n  %s\n", p.green(p.bold("All checks passed, you're ready for the workshop!")))
	}

	fmt.Fprintln(p.w)
}

// Run loads the environment, runs every check and prints the report. It
// returns the results and whether any critical check failed.
func Run(ctx context.Context, w io.Writer, opts Options) ([]Result, bool, error) {
	env, err := LoadEnv(opts.Root, opts.Environ)
	if err != nil {
		return nil, false, err
	}

	p := NewPrinter(w)
	p.Header()

	if env.DotenvPath != "" {
		fmt.Fprintf(w, "  Found .env file: %s\n\n", env.DotenvPath)
	} else {
		fmt.Fprintf(w, "  No .env file found (looked in %s)\n\n", opts.Root)
	}

	var results []Result
	var failed bool

	for _, c := range Checks(env, opts) {
		fmt.Fprintf(w, "Checking %s ...\n", c.Label)

		r := c.Run(ctx)
		results = append(results, r)
		failed = failed || r.Failed()

		p.Result(r)
		fmt.Fprintln(w)
	}

	p.Summary(results)

	return results, failed, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func firstLine(s string) string {
	first, _, _ := strings.Cut(s, "\n")
	return first
}
