package compiler

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	libsass "github.com/wellington/go-libsass"
)

// LibSass compiles in process with libsass. It handles the SCSS syntax only;
// indented .sass sources need the dartsass backend.
type LibSass struct{}

// libsass reports "Error > <file>:<line>" followed by the message.
var libsassErrHeader = regexp.MustCompile(`^Error > .*?:(\d+)\s*$`)

func libsassStyle(style string) int {
	if style == StyleCompressed {
		return libsass.COMPRESSED_STYLE
	}
	return libsass.EXPANDED_STYLE
}

// Compile implements Backend.
func (LibSass) Compile(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Syntax == SyntaxIndented {
		return "", &CompileError{
			Path:    req.Path,
			Message: "indented syntax is not supported by libsass, use the dartsass backend",
			Err:     ErrUnsupportedSyntax,
		}
	}

	var out bytes.Buffer
	comp, err := libsass.New(&out, strings.NewReader(req.Text),
		libsass.IncludePaths(req.LoadPaths),
		libsass.OutputStyle(libsassStyle(req.Style)),
	)
	if err != nil {
		return "", err
	}
	if err := comp.Run(); err != nil {
		return "", libsassError(req.Path, err)
	}
	return out.String(), nil
}

func libsassError(path string, err error) *CompileError {
	ce := &CompileError{Path: path, Message: strings.TrimSpace(err.Error()), Err: err}
	header, rest, found := strings.Cut(ce.Message, "\n")
	if m := libsassErrHeader.FindStringSubmatch(header); m != nil && found {
		ce.Line, _ = strconv.Atoi(m[1])
		ce.Message = strings.TrimSpace(rest)
	}
	return ce
}
