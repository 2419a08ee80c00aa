package formatterplugins

import (
	"os"
	"path/filepath"
	"plugin"

	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

// LoadExternal loads every "*.so" file in dir as a Go plugin
// (-buildmode=plugin) and registers whichever of LineFormatter,
// MultilineFormatter, and DocumentPreprocessor its exported "Plugin" symbol
// implements. A plugin that fails to open, lacks the symbol, or implements
// none of the three interfaces is logged and skipped rather than failing
// the whole load.
func LoadExternal(dir string, reg *pluginregistry.Registry, log logging.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".so" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := plugin.Open(path)
		if err != nil {
			log.Warn("failed to open formatter plugin", "path", path, "error", err)
			continue
		}
		sym, err := p.Lookup("Plugin")
		if err != nil {
			log.Warn("formatter plugin missing Plugin symbol", "path", path, "error", err)
			continue
		}

		registered := false
		if f, ok := sym.(pluginregistry.LineFormatter); ok {
			reg.RegisterLine(f)
			registered = true
		}
		if f, ok := sym.(pluginregistry.MultilineFormatter); ok {
			reg.RegisterMultiline(f)
			registered = true
		}
		if f, ok := sym.(pluginregistry.DocumentPreprocessor); ok {
			reg.RegisterPreprocessor(f)
			registered = true
		}
		if !registered {
			log.Warn("formatter plugin implements none of the known interfaces", "path", path)
		}
	}
	return nil
}
