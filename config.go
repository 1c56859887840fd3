package classforge

import (
	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/classfile"
)

// Config controls how classes are generated, with the default implementation
// as NewConfig. Config is immutable: each With method returns a copy.
type Config struct {
	logger     *zap.Logger
	major      int
	maxPasses  int
	debugDir   string
	sourceFile bool
}

var defaultConfig = &Config{
	major:     classfile.DefaultMajor,
	maxPasses: asm.DefaultMaxPasses,
}

// NewConfig returns a Config producing Java 11 class files.
func NewConfig() *Config {
	return defaultConfig.clone()
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	return &Config{
		logger:     c.logger,
		major:      c.major,
		maxPasses:  c.maxPasses,
		debugDir:   c.debugDir,
		sourceFile: c.sourceFile,
	}
}

// WithLogger scopes a logger to contexts using this config. Defaults to the
// package logger, see SetLogger.
func (c *Config) WithLogger(logger *zap.Logger) *Config {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithVersion sets the major class file version. Defaults to 55 (Java 11).
// Versions below 50 are rejected by verifiers when StackMapTable frames are
// required, so they are raised to 50.
func (c *Config) WithVersion(major int) *Config {
	if major < 50 {
		major = 50
	}
	ret := c.clone()
	ret.major = major
	return ret
}

// WithMaxEncodePasses limits the encoding passes of a method, which restart
// whenever a branch needs a wide offset. Zero or less means the default of
// 16.
func (c *Config) WithMaxEncodePasses(n int) *Config {
	if n <= 0 {
		n = asm.DefaultMaxPasses
	}
	ret := c.clone()
	ret.maxPasses = n
	return ret
}

// WithDebugDir writes every finished class file under dir, as
// dir/<internal name>.class. An empty dir disables it.
func (c *Config) WithDebugDir(dir string) *Config {
	ret := c.clone()
	ret.debugDir = dir
	return ret
}

// WithSourceFile adds a SourceFile attribute naming the simple class name
// to classes which don't set one explicitly.
func (c *Config) WithSourceFile(enabled bool) *Config {
	ret := c.clone()
	ret.sourceFile = enabled
	return ret
}

func (c *Config) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return Logger()
}
