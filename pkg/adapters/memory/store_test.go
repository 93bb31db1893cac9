package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/core/streamtest"
)

func TestStore_FailWrites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	boom := errors.New("relay offline")

	s.FailWrites(boom)
	assert.ErrorIs(t, s.Write(ctx, "a", core.Value(`"x"`)), boom)
	assert.ErrorIs(t, s.Tombstone(ctx, "a"), boom)
	_, ok := s.Raw("a")
	assert.False(t, ok)

	s.FailWrites(nil)
	require.NoError(t, s.Write(ctx, "a", core.Value(`"x"`)))
	assert.Equal(t, []string{"a"}, s.Keys())
}

func TestStore_Contract(t *testing.T) {
	streamtest.Run(t, func(t *testing.T) core.Stream { return memory.New() })
}
