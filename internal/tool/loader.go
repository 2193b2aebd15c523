package tool

import (
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"go.uber.org/zap"
)

// entryPointName is the symbol every extension plugin must export:
//
//	func RegisterTools(reg *tool.Registry)
//
// The function receives the registry and may register any number of tools.
const entryPointName = "RegisterTools"

// lookupFunc resolves a symbol in a loaded plugin.
type lookupFunc func(name string) (plugin.Symbol, error)

// openPlugin is swapped out in tests; building real .so fixtures would tie
// the tests to the host toolchain.
var openPlugin = func(path string) (lookupFunc, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p.Lookup, nil
}

// LoadExtensions scans dir for plugin shared objects and gives each one a
// chance to register tools. One bad extension never aborts the scan: a
// module that cannot be opened, lacks the entry point, has the wrong
// signature, or panics while registering is skipped and logged.
func LoadExtensions(reg *Registry, dir string, logger *zap.Logger) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("extensions directory absent", zap.String("dir", dir))
			return
		}
		logger.Warn("reading extensions directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}
		loadOne(reg, filepath.Join(dir, entry.Name()), logger)
	}
}

func loadOne(reg *Registry, path string, logger *zap.Logger) {
	lookup, err := openPlugin(path)
	if err != nil {
		logger.Error("skipping extension: open failed",
			zap.String("path", path), zap.Error(err))
		return
	}

	sym, err := lookup(entryPointName)
	if err != nil {
		logger.Warn("skipping extension: no RegisterTools entry point",
			zap.String("path", path))
		return
	}

	register, ok := sym.(func(*Registry))
	if !ok {
		logger.Error("skipping extension: RegisterTools has wrong signature",
			zap.String("path", path))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("skipping extension: panic during registration",
				zap.String("path", path), zap.Any("panic", r))
		}
	}()
	register(reg)
	logger.Info("loaded extension", zap.String("path", path))
}
