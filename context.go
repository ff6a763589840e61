package psynth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when file is not found in the search paths.
var ErrNotFound = errors.New("file not found")

// Context carries the process-wide services. It's created once by the
// application and passed into the processor, devices and node
// constructors.
type Context struct {
	Log   logrus.FieldLogger
	Paths []string
}

// NewContext returns context with provided logger and search paths.
func NewContext(log logrus.FieldLogger, paths ...string) *Context {
	return &Context{
		Log:   log,
		Paths: paths,
	}
}

// Logger returns logger scoped to the component.
func (c *Context) Logger(component string) logrus.FieldLogger {
	return c.Log.WithField("component", component)
}

// Find resolves the file name. Absolute paths and paths relative to the
// working directory are checked first, then the search paths in order.
func (c *Context) Find(name string) (string, error) {
	if exists(name) {
		return filepath.Abs(name)
	}
	if !filepath.IsAbs(name) {
		for _, dir := range c.Paths {
			path := filepath.Join(dir, name)
			if exists(path) {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
