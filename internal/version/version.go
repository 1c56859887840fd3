// Package version reports the classforge version of the running binary.
package version

import (
	"runtime/debug"
	"strings"
)

// Default is the version reported when the build carries none.
const Default = "dev"

const modulePath = "github.com/classforge/classforge"

// version is set with -ldflags "-X ..." by release builds, and caches the
// build info lookup otherwise.
var version string

// GetClassforgeVersion returns the version of classforge, either set by
// ldflag, or the one required in the go.mod of the main module.
func GetClassforgeVersion() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	if ret := fromBuildInfo(info); !missing(ret) {
		version = ret
		return ret
	}
	return Default
}

func fromBuildInfo(info *debug.BuildInfo) (ret string) {
	for _, dep := range info.Deps {
		if strings.HasPrefix(dep.Path, modulePath) {
			ret = dep.Version
			if dep.Replace != nil && !missing(dep.Replace.Version) {
				ret = dep.Replace.Version
			}
		}
	}
	// The CLI is built within the main module.
	if missing(ret) && info.Main.Path == modulePath {
		ret = info.Main.Version
	}
	return
}

// missing reports an empty version, or the "(devel)" placeholder of builds
// from a checkout.
func missing(v string) bool {
	return v == "" || v == "(devel)"
}
