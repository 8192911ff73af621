package probe

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each prober in order and falls through only when one is unavailable.
type Chain []Prober

func (c Chain) Method() Method {
	return MethodAuto
}

func (c Chain) Probe(ctx context.Context, host string) (Response, error) {
	var errs []error
	for _, p := range c {
		resp, err := p.Probe(ctx, host)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return resp, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Method(), err))
	}
	if len(errs) == 0 {
		return Response{}, fmt.Errorf("%w: empty chain", ErrUnavailable)
	}
	return Response{}, errors.Join(errs...)
}
