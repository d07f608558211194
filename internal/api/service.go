package api

import (
	"context"
	"fmt"

	"github.com/samcharles93/mixq/pkg/qconv"
)

// ConvolutionService runs stored layers. It is safe for concurrent use:
// every call takes its own scratch buffers from the layer's pool.
type ConvolutionService struct {
	store *LayerStore
}

func NewConvolutionService(store *LayerStore) *ConvolutionService {
	return &ConvolutionService{store: store}
}

// Result holds either the packed output or the raw accumulators.
type Result struct {
	Layer        string
	Variant      qconv.Variant
	OutDim       int
	OutCh        int
	Output       []byte
	Accumulators []int32
}

func (s *ConvolutionService) Convolve(ctx context.Context, req ConvolveRequest) (*Result, error) {
	e, err := s.store.entry(req.Layer)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := e.layer
	p := l.Params
	if need := p.InputLen(); len(req.Input) != need {
		return nil, fmt.Errorf("%w: input has %d bytes, layer %q expects %d", qconv.ErrSizeMismatch, len(req.Input), l.Name, need)
	}

	scratch := e.scratch.Get().(*qconv.Scratch)
	defer e.scratch.Put(scratch)

	res := &Result{
		Layer:   l.Name,
		Variant: p.Variant,
		OutDim:  p.Geometry.OutDim(),
		OutCh:   p.Geometry.OutCh,
	}
	if req.Raw {
		res.Accumulators = make([]int32, p.Positions()*p.Geometry.OutCh)
		err = qconv.ConvolveRaw(res.Accumulators, req.Input, l.Weights, p, *scratch)
	} else {
		res.Output = make([]byte, p.OutputLen())
		err = qconv.Convolve(res.Output, req.Input, l.Weights, p, *scratch)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
