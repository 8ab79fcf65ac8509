// Package buildinfo carries build-time metadata injected via -ldflags.
package buildinfo

import "runtime/debug"

// Set with -ldflags "-X github.com/tphakala/rtp-recorder/internal/buildinfo.version=..."
var (
	version   = ""
	buildDate = ""
)

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata of the running binary. When no version was
// injected it falls back to the module version recorded by the go tool.
func Current() *Context {
	ctx := &Context{Version: version, BuildDate: buildDate}
	if ctx.Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			ctx.Version = info.Main.Version
		}
	}
	return ctx
}

// GetVersion returns the build version string
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date string
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}
