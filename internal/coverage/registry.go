package coverage

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
)

const DefaultStrategy = "contour"

type Factory func(opts contour.Options) Strategy

var (
	regMu sync.RWMutex
	reg   = map[string]Factory{
		"contour": func(opts contour.Options) Strategy { return Contour{Options: opts} },
		"bbox":    func(contour.Options) Strategy { return BoundingBox{} },
		"clip":    func(opts contour.Options) Strategy { return Clip{Options: opts} },
	}
)

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	reg[name] = f
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// New looks up a strategy by name. Unknown names fall back to the contour
// strategy.
func New(name string, opts contour.Options, logger *slog.Logger) (Strategy, error) {
	regMu.RLock()
	f, ok := reg[name]
	if !ok {
		f, ok = reg[DefaultStrategy]
		if ok && logger != nil {
			logger.Warn("unknown coverage strategy; falling back", "strategy", name, "fallback", DefaultStrategy)
		}
	}
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory for strategy %q and no %s registered", name, DefaultStrategy)
	}
	return f(opts), nil
}
