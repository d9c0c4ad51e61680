// Package buildinfo carries build-time metadata injected through ldflags.
package buildinfo

import (
	"fmt"

	"github.com/tphakala/docquality/internal/conf"
)

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
}

// NewContext creates a Context. An empty version falls back to the service
// API version.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the build version.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	if c.version == "" {
		return conf.ServiceVersion
	}
	return c.version
}

// BuildDate returns the build date.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// String formats the metadata for --version.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s, api %s)", c.Version(), c.BuildDate(), conf.ServiceVersion)
}
