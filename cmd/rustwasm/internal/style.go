package internal

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/goplus/rustwasm/internal/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func printSummary(w io.Writer, outDir string, summaries []*summary) {
	if len(summaries) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Built "+outDir))
	for _, s := range summaries {
		opt := ""
		if s.Optimized {
			opt = ", optimized"
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			nameStyle.Render(s.Entry),
			typeStyle.Render(formatSize(s.Size)),
			dimStyle.Render(fmt.Sprintf("(%d modules%s, %s)", s.Modules, opt, s.Digest.Encoded()[:12])))
	}
}

func printInfo(w io.Writer, name string, info *wasm.Info) {
	fmt.Fprintln(w, titleStyle.Render(name))
	section := func(title string, funcs []wasm.Function) {
		if len(funcs) == 0 {
			return
		}
		fmt.Fprintln(w, dimStyle.Render(title))
		for _, f := range funcs {
			prefix := ""
			if f.Module != "" {
				prefix = f.Module + "."
			}
			fmt.Fprintf(w, "  %s %s\n",
				nameStyle.Render(prefix+f.Name),
				typeStyle.Render(fmt.Sprintf("%v -> %v", f.Params, f.Results)))
		}
	}
	section("exports", info.Exports)
	section("imports", info.Imports)
	if len(info.Memories) > 0 {
		fmt.Fprintln(w, dimStyle.Render("memories"))
		for _, m := range info.Memories {
			limit := "unbounded"
			if m.HasMax {
				limit = fmt.Sprintf("max %d", m.Max)
			}
			fmt.Fprintf(w, "  %s %s\n",
				nameStyle.Render(m.Name),
				typeStyle.Render(fmt.Sprintf("min %d, %s pages", m.Min, limit)))
		}
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
