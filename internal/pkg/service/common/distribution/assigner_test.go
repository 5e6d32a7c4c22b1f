package distribution_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/service/common/distribution"
)

func TestAssigner_SingleNode(t *testing.T) {
	t.Parallel()
	a := distribution.NewAssigner("node1")
	assert.Equal(t, []string{"node1"}, a.Nodes())
	for i := 1; i <= 20; i++ {
		owner, err := a.IsOwner(fmt.Sprintf("episode%02d", i))
		require.NoError(t, err)
		assert.True(t, owner)
	}
}

func TestAssigner_SameDecisionOnAllNodes(t *testing.T) {
	t.Parallel()
	members := []string{"node1", "node2", "node3"}
	a1 := distribution.NewAssigner("node1", members...)
	a2 := distribution.NewAssigner("node2", members...)
	a3 := distribution.NewAssigner("node3", members...)
	assert.Equal(t, members, a1.Nodes())
	assert.Equal(t, 3, a2.NodesCount())

	for i := 1; i <= 50; i++ {
		key := fmt.Sprintf("episode%02d", i)
		owners := 0
		for _, a := range []*distribution.Assigner{a1, a2, a3} {
			owner, err := a.IsOwner(key)
			require.NoError(t, err)
			if owner {
				owners++
			}
		}
		assert.Equal(t, 1, owners, key)
	}
}

func TestAssigner_AddRemoveNode(t *testing.T) {
	t.Parallel()
	a := distribution.NewAssigner("node1")
	a.AddNode("node2")
	assert.True(t, a.HasNode("node2"))
	assert.True(t, a.RemoveNode("node2"))
	assert.False(t, a.HasNode("node2"))
	assert.False(t, a.RemoveNode("node1"))
	assert.True(t, a.HasNode("node1"))
}
