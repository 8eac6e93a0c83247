// Package buildinfo carries build-time metadata that is injected at startup and never configured.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetCommit() string
}

// Context contains build-time metadata set through -ldflags in main.
type Context struct {
	Version   string
	BuildDate string
	Commit    string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetCommit implements BuildInfo.GetCommit
func (c *Context) GetCommit() string {
	if c == nil || c.Commit == "" {
		return UnknownValue
	}
	return c.Commit
}

// Release returns the Sentry release name.
func (c *Context) Release() string {
	return "birdlens@" + c.GetVersion()
}

// UserAgent returns the User-Agent sent to external APIs.
func (c *Context) UserAgent() string {
	return fmt.Sprintf("birdlens/%s (+https://github.com/birdlens/birdlens)", c.GetVersion())
}

// String summarizes the build for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("birdlens %s (commit %s, built %s)", c.GetVersion(), c.GetCommit(), c.GetBuildDate())
}
