// Package fallback runs an ordered list of candidate strategies until one succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrNoStrategies = errors.New("fallback: no strategies")

type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Run returns the result of the first strategy that succeeds. If all fail,
// the failures are joined into one error in attempt order.
func Run[T any](ctx context.Context, strategies ...Strategy[T]) (T, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, ErrNoStrategies
	}

	errs := make([]error, 0, len(strategies))
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := s.Run(ctx)
		if err == nil {
			if i > 0 {
				log.Info().Str("module", "fallback").Str("strategy", s.Name).Int("attempt", i+1).Msg("fallback succeeded")
			}
			return v, nil
		}
		log.Warn().Err(err).Str("module", "fallback").Str("strategy", s.Name).Msg("strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return zero, errors.Join(errs...)
}
