package quality

import (
	"github.com/knadh/koanf/providers/file"
)

// WatchFile reloads the ruleset from path whenever the file changes. A file
// that fails to load or compile is logged and the previous rules stay in
// force. The returned function stops watching.
func (g *Gate) WatchFile(path string) (stop func() error, err error) {
	f := file.Provider(path)
	err = f.Watch(func(_ interface{}, werr error) {
		if werr != nil {
			g.metrics.IncrementReload("error")
			g.logger.Error("quality rules watch failed", "path", path, "error", werr)
			return
		}
		rules, lerr := LoadRules(path)
		if lerr == nil {
			lerr = g.Swap(rules)
		}
		if lerr != nil {
			g.metrics.IncrementReload("error")
			g.logger.Error("quality rules reload rejected; keeping current rules", "path", path, "error", lerr)
			return
		}
		g.metrics.IncrementReload("ok")
		g.logger.Info("quality rules reloaded", "path", path, "version", rules.Version)
	})
	if err != nil {
		return nil, err
	}
	return f.Unwatch, nil
}
