package targets

import (
	"github.com/danmuck/edgeworker/internal/codec"
	"github.com/danmuck/edgeworker/internal/targets/calc"
	"github.com/danmuck/edgeworker/internal/targets/fs"
	"github.com/danmuck/edgeworker/internal/targets/kv"
	"github.com/danmuck/edgeworker/internal/targets/plugins"
	"github.com/danmuck/edgeworker/internal/worker"
)

// Register installs every built-in implementation into f.
func Register(f *worker.Factory) error {
	builtins := []struct {
		name string
		ctor worker.Constructor
	}{
		{calc.Name, calc.New},
		{kv.Name, kv.New},
		{fs.Name, fs.New},
		{plugins.Name, plugins.New},
	}
	for _, b := range builtins {
		if err := f.Register(b.name, b.ctor); err != nil {
			return err
		}
	}
	return nil
}

// NewFactory returns a factory holding every built-in implementation.
func NewFactory() (*worker.Factory, error) {
	f := worker.NewFactory()
	if err := Register(f); err != nil {
		return nil, err
	}
	return f, nil
}

// RegisterCodecs adds the descriptors built-in implementations use beyond
// the codec builtins. Callers decoding their results need the same set.
func RegisterCodecs(reg *codec.Registry) error {
	return kv.RegisterCodecs(reg)
}
