package transport_test

import (
	"net"
	"testing"

	"github.com/aretw0/fsmlink/pkg/transport"
	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := transport.NewRegistry()
	a, aPeer := net.Pipe()
	b, bPeer := net.Pipe()
	defer aPeer.Close()
	defer bPeer.Close()

	r.Add(2, b)
	r.Add(1, a)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []transport.ConnID{1, 2}, r.IDs())

	conn, ok := r.Get(1)
	assert.True(t, ok)
	assert.Equal(t, a, conn)

	assert.True(t, r.Remove(1))
	assert.False(t, r.Remove(1))
	_, ok = r.Get(1)
	assert.False(t, ok)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	_, err := b.Write([]byte("x"))
	assert.Error(t, err)
}
