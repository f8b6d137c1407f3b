package connector

import (
	"context"
	"sync"
	"sync/atomic"
)

type fakeProcessor struct {
	initErr error
	inits   *int32

	mu      sync.Mutex
	records []Record
}

func (p *fakeProcessor) Initialize(context.Context) error {
	atomic.AddInt32(p.inits, 1)
	return p.initErr
}

func (p *fakeProcessor) Emit(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

type fakeProcessors struct {
	initErr error
	newErr  error
	inits   int32
	created int32
}

func (f *fakeProcessors) NewProcessor(Source, string) (Processor, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	atomic.AddInt32(&f.created, 1)
	return &fakeProcessor{initErr: f.initErr, inits: &f.inits}, nil
}

func (f *fakeProcessors) initCount() int32 {
	return atomic.LoadInt32(&f.inits)
}

func testDefinition(source Source, configName string, extra ...string) Definition {
	return Definition{
		Source:         source,
		ConfigName:     configName,
		RequiredFields: extra,
		Run: func(ctx context.Context, _ *Instance) error {
			<-ctx.Done()
			return nil
		},
	}
}
