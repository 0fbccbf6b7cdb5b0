package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/ui"
)

// helpRule restyles every match of re in cobra's plain help text.
type helpRule struct {
	re    *regexp.Regexp
	style func(m []string) string
}

// helpRules run in order over the rendered usage text.
var helpRules = []helpRule{
	// Group headers such as "Investigation:" or "Flags:". "Usage:" stays plain.
	{regexp.MustCompile(`(?m)^([A-Z][a-z]+(?: [A-Za-z]+)*:)[ \t]*$`), func(m []string) string {
		if m[1] == "Usage:" {
			return m[0]
		}
		return ui.RenderAccent(m[1])
	}},
	// Subcommand names in the command list.
	{regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(  +)`), func(m []string) string {
		return m[1] + ui.RenderCommand(m[2]) + m[3]
	}},
	// Flag value types, e.g. "--every duration".
	{regexp.MustCompile(`(--[\w-]+ )(string|int|float64|duration|strings)\b`), func(m []string) string {
		return m[1] + ui.RenderMuted(m[2])
	}},
	{regexp.MustCompile(`\(default [^)]*\)`), func(m []string) string {
		return ui.RenderMuted(m[0])
	}},
}

func colorizeHelp(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}

// colorizedHelpFunc renders cobra's usage and colours it when stdout is a
// terminal that wants colour.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}
