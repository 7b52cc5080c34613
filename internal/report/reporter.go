// Package report formats build results and compile errors for the terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yacobolo/globalcss/internal/bundle"
	"github.com/yacobolo/globalcss/internal/compiler"
)

// Options configures a Reporter.
type Options struct {
	UseColors        bool // force colors on
	PrintSourceLines bool // show the offending source line under compile errors
}

// Reporter prints human readable output.
type Reporter struct {
	w          io.Writer
	useColors  bool
	printLines bool
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer, opts Options) *Reporter {
	return &Reporter{
		w:          w,
		useColors:  ShouldUseColors(opts.UseColors),
		printLines: opts.PrintSourceLines,
	}
}

// ShouldUseColors determines if colors should be enabled
func ShouldUseColors(force bool) bool {
	// Explicit flag wins
	if force {
		return true
	}

	// Check for FORCE_COLOR environment variable (GitHub Actions, etc.)
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return true
	}

	// Auto-detect TTY
	if fileInfo, err := os.Stdout.Stat(); err == nil && (fileInfo.Mode()&os.ModeCharDevice) != 0 {
		return true
	}

	return false
}

// UseColors returns whether colors are enabled
func (r *Reporter) UseColors() bool {
	return r.useColors
}

// PrintError prints err. Compile errors get a file:line location and,
// when enabled, the source line they point at.
func (r *Reporter) PrintError(err error) {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) || ce.Path == "" {
		fmt.Fprintf(r.w, "%s %s\n", RenderStyle(StyleRed, "error:", r.useColors), err)
		return
	}

	location := ce.Path + ":"
	if ce.Line > 0 {
		location = fmt.Sprintf("%s:%d:", ce.Path, ce.Line)
	}
	fmt.Fprintf(r.w, "%s %s\n", RenderStyle(StyleCyan, location, r.useColors), ce.Message)

	if !r.printLines || ce.Line <= 0 {
		return
	}
	line, ok := sourceLine(ce.Path, ce.Line)
	if !ok {
		return
	}
	fmt.Fprintf(r.w, "\t%s\n", line)
	caret := buildCaretIndicator(line, firstNonSpace(line))
	fmt.Fprintf(r.w, "\t%s\n", RenderStyle(StyleYellow, caret, r.useColors))
}

func sourceLine(path string, n int) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}

// firstNonSpace returns the 1-based column of the first non-blank character.
func firstNonSpace(line string) int {
	for i, ch := range line {
		if ch != ' ' && ch != '\t' {
			return i + 1
		}
	}
	return 1
}

// buildCaretIndicator creates the "^" indicator aligned with the column.
// Tabs in the prefix are kept so the caret lines up in the terminal.
func buildCaretIndicator(sourceLine string, column int) string {
	if column <= 0 {
		return "^"
	}

	prefixLen := column - 1
	if prefixLen > len(sourceLine) {
		prefixLen = len(sourceLine)
	}

	var padding strings.Builder
	for _, ch := range sourceLine[:prefixLen] {
		if ch == '\t' {
			padding.WriteRune('\t')
		} else {
			padding.WriteRune(' ')
		}
	}

	return padding.String() + "^"
}

// PrintBuildSummary outputs what a production build produced.
func (r *Reporter) PrintBuildSummary(res *bundle.Result, outDir string) {
	fmt.Fprintln(r.w, "")
	fmt.Fprintln(r.w, RenderStyle(StyleCyan, "Build Summary", r.useColors))
	fmt.Fprintln(r.w, "-------------")

	fmt.Fprintf(r.w, "Output:                %s\n", outDir)
	fmt.Fprintf(r.w, "Stylesheet:            %s\n", res.Stylesheet)
	fmt.Fprintf(r.w, "Static Assets:         %s\n", pluralizeCount(res.AssetsCopied, "file", "files"))
	fmt.Fprintf(r.w, "Pages Written:         %d\n", len(res.Pages))
	fmt.Fprintf(r.w, "Placeholders Resolved: %d\n", res.Rewritten)
	if res.Discovery.FilesSkipped > 0 {
		fmt.Fprintf(r.w, "Pages Skipped:         %d (hidden or gitignored)\n", res.Discovery.FilesSkipped)
	}

	if len(res.Pages) > 0 && res.Rewritten == 0 {
		fmt.Fprintln(r.w, "")
		fmt.Fprintln(r.w, RenderStyle(StyleYellow, "Warning: no page contains the stylesheet placeholder", r.useColors))
	}

	fmt.Fprintln(r.w, "")
	fmt.Fprintln(r.w, RenderStyle(StyleGreen, "✓ Build complete", r.useColors))
}

// PrintDevBanner outputs the dev server startup message.
func (r *Reporter) PrintDevBanner(url, source, artifact string) {
	fmt.Fprintf(r.w, "%s %s\n", RenderStyle(StyleGreen, "globalcss dev server", r.useColors), url)
	fmt.Fprintf(r.w, "  source:   %s\n", source)
	fmt.Fprintf(r.w, "  artifact: %s\n", artifact)
	fmt.Fprintln(r.w, RenderStyle(StyleGray, "  press Ctrl+C to stop", r.useColors))
}

// pluralizeCount returns a formatted string with count and singular/plural form
func pluralizeCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}
