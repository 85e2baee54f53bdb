//go:build !v8

package quickjs

import (
	"runtime/debug"
	"slices"

	"github.com/cryguy/xchg/internal/core"
)

// ModulePath is the Go module whose unexported VM layout the direct
// transfer path reads.
const ModulePath = "modernc.org/quickjs"

// layoutVersions lists the releases of ModulePath whose VM struct layout
// (cContext at offset 0, runtime.tls after cRuntime) has been verified.
var layoutVersions = []string{"v0.17.1"}

// ModuleVersion returns the version of ModulePath linked into the binary,
// or "" when build info is unavailable or the module is replaced by a
// local directory.
func ModuleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, dep := range info.Deps {
		if dep.Path != ModulePath {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return ""
}

// moduleVersion reports the linked version to CheckLayout. Test binaries
// carry no dependency build info, so tests replace it.
var moduleVersion = ModuleVersion

// CheckLayout verifies the linked module version against layoutVersions.
func CheckLayout() error {
	return checkLayoutVersion(moduleVersion())
}

func checkLayoutVersion(reported string) error {
	if reported != "" && slices.Contains(layoutVersions, reported) {
		return nil
	}
	if reported == "" {
		reported = "(unknown)"
	}
	return &core.VersionMismatchError{
		Module:     ModulePath,
		Reported:   reported,
		Compatible: slices.Clone(layoutVersions),
	}
}
