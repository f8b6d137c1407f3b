package connector

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotSetReturnsSuperseded(t *testing.T) {
	slot := NewSlot()
	first := &Instance{OrgID: "org-1", Source: SourceOneDrive}
	second := &Instance{OrgID: "org-1", Source: SourceOneDrive}

	assert.Nil(t, slot.Set(first))
	assert.Same(t, first, slot.Set(second))

	got, ok := slot.Get("org-1", SourceOneDrive)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, slot.Len())

	_, ok = slot.Get("org-1", SourceSharePoint)
	assert.False(t, ok)
}

func TestSlotKeysAreSorted(t *testing.T) {
	slot := NewSlot()
	slot.Set(&Instance{OrgID: "org-2", Source: SourceOneDrive})
	slot.Set(&Instance{OrgID: "org-1", Source: SourceSharePoint})
	slot.Set(&Instance{OrgID: "org-1", Source: SourceOneDrive})

	assert.Equal(t, []Key{
		{OrgID: "org-1", Source: SourceOneDrive},
		{OrgID: "org-1", Source: SourceSharePoint},
		{OrgID: "org-2", Source: SourceOneDrive},
	}, slot.Keys())
}

func TestSlotConcurrentSetsKeepOneInstancePerKey(t *testing.T) {
	slot := NewSlot()
	const writers = 32

	instances := make([]*Instance, writers)
	for i := range instances {
		instances[i] = &Instance{OrgID: fmt.Sprintf("org-%d", i%4), Source: SourceOneDrive}
	}

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			slot.Set(inst)
			got, ok := slot.Get(inst.OrgID, inst.Source)
			assert.True(t, ok)
			assert.Equal(t, inst.OrgID, got.OrgID)
		}(inst)
	}
	wg.Wait()

	assert.Equal(t, 4, slot.Len())
	for _, key := range slot.Keys() {
		got, _ := slot.Get(key.OrgID, key.Source)
		assert.Contains(t, instances, got)
	}
}
