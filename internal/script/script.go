// Package script compiles host-supplied JavaScript and TypeScript into
// plain scripts that either engine can evaluate.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Loader names the source language of a script.
type Loader string

const (
	LoaderJS Loader = "js"
	LoaderTS Loader = "ts"
)

// LoaderFor picks a loader from a file extension.
func LoaderFor(path string) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return LoaderTS
	default:
		return LoaderJS
	}
}

func (l Loader) esbuild() (esbuild.Loader, error) {
	switch l {
	case LoaderJS, "":
		return esbuild.LoaderJS, nil
	case LoaderTS:
		return esbuild.LoaderTS, nil
	default:
		return esbuild.LoaderNone, fmt.Errorf("unknown loader %q", l)
	}
}

// Target is the language level scripts are lowered to. Both QuickJS and V8
// run ES2020 without polyfills.
const Target = esbuild.ES2020

// Compile transforms a single self-contained script. Top-level declarations
// stay in script scope so they remain visible as globals after evaluation.
func Compile(source string, loader Loader) (string, error) {
	l, err := loader.esbuild()
	if err != nil {
		return "", err
	}
	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader: l,
		Target: Target,
	})
	if err := joinErrors("compiling script", result.Errors); err != nil {
		return "", err
	}
	return string(result.Code), nil
}

// Bundle resolves entry and everything it imports into one IIFE. Exports
// of the entry module are discarded; scripts publish values through
// globalThis.
func Bundle(entry string) (string, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entry, err)
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        Target,
		TreeShaking:   esbuild.TreeShakingFalse,
	})
	if err := joinErrors("bundling "+filepath.Base(abs), result.Errors); err != nil {
		return "", err
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling produced no output")
	}
	return string(result.OutputFiles[0].Contents), nil
}

// Load reads path and compiles it, bundling only when the file imports
// other modules.
func Load(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	if NeedsBundling(string(src)) {
		return Bundle(path)
	}
	return Compile(string(src), LoaderFor(path))
}

// NeedsBundling reports whether source contains module syntax that a plain
// script evaluation would reject.
func NeedsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "export ") ||
		strings.Contains(source, "export{") ||
		strings.Contains(source, "require(")
}

func joinErrors(action string, msgs []esbuild.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		texts = append(texts, m.Text)
	}
	return fmt.Errorf("%s: %s", action, strings.Join(texts, "; "))
}
