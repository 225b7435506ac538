package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/fsmlink/pkg/adapters/memory"
	"github.com/aretw0/fsmlink/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Contract(t *testing.T) {
	data := map[string][]byte{
		"tof5s.json": []byte(`{"name":"TOF5s"}`),
		"blink":      []byte("name: blink\n"),
	}
	tests.DefinitionLoaderContractTest(t, memory.NewLoader(data), data)
}

func TestLoader_SaveCopies(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLoader(nil)
	buf := []byte(`{"name":"a"}`)

	require.NoError(t, l.Save(ctx, "a", buf))
	buf[2] = 'X'

	got, err := l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(got))
	assert.Error(t, l.Save(ctx, "", buf))

	names, err := l.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}
