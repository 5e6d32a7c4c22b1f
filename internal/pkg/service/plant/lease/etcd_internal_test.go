package lease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.etcd.io/etcd/api/v3/mvccpb"
)

func TestHolderOf(t *testing.T) {
	t.Parallel()

	_, found := holderOf(nil)
	assert.False(t, found)

	holder, found := holderOf([]*mvccpb.KeyValue{{Key: []byte("claim/x"), Value: []byte("FT:1")}})
	assert.True(t, found)
	assert.Equal(t, "FT:1", holder)
}
