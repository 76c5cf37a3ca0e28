// Package version derives the build identity from Go build metadata. A
// release override set with -ldflags wins; otherwise the VCS revision
// stamped by the toolchain is used, with "dev" as the fallback for test
// binaries and builds outside a checkout.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings, log banners and user agents.
const AppName = "reeler"

// commitOverride is set via -ldflags for container builds where no .git
// directory is available to the toolchain.
var commitOverride string

// Commit returns the identity of this build: the override, or the short
// VCS revision with a -dirty suffix for modified trees, or "dev".
var Commit = sync.OnceValue(func() string {
	if commitOverride != "" {
		return shorten(commitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	revision = shorten(revision)
	if dirty {
		revision += "-dirty"
	}
	return revision
})

// Full returns "reeler/<commit>" for user-agent strings and banners.
func Full() string {
	return AppName + "/" + Commit()
}

func shorten(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
