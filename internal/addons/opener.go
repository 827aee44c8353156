package addons

import (
	"fmt"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"
)

// Library is a mapped addon library.
type Library interface {
	Lookup(symbol string) (any, error)
	Close() error
}

// Opener maps addon libraries into the process.
type Opener interface {
	Open(path string) (Library, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Library, error)

// Open calls f.
func (f OpenerFunc) Open(path string) (Library, error) {
	return f(path)
}

// NativeOpener opens addons built with -buildmode=plugin.
func NativeOpener() Opener {
	return OpenerFunc(func(path string) (Library, error) {
		p, err := plugin.Open(path)
		if err != nil {
			return nil, err
		}
		return nativeLibrary{p: p}, nil
	})
}

type nativeLibrary struct {
	p *plugin.Plugin
}

func (l nativeLibrary) Lookup(symbol string) (any, error) {
	sym, err := l.p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, symbol)
	}
	return sym, nil
}

// Close is a no-op: the Go runtime never unmaps a plugin.
func (l nativeLibrary) Close() error {
	return nil
}

// LibraryExt returns the addon library extension for the host OS.
func LibraryExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// IsLibraryFile reports whether name carries the host library extension.
func IsLibraryFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), LibraryExt())
}
