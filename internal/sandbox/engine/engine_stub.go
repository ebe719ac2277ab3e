//go:build !linux && !darwin

package engine

func newEngine(cfg Config) (Engine, error) {
	return nil, ErrUnsupportedPlatform
}
