// Package distribution assigns ownership of keys, for example episode IDs, to the nodes of the cluster.
//
// The hash ring/consistent hashing pattern is used to make the assignment,
// it is provided by the "consistent" package. All nodes with the same list of members make the same decision,
// so exactly one node performs the work for a key without any coordination.
package distribution

import (
	"sort"
	"sync"

	"github.com/lafikl/consistent"
)

// Assigner locally assigns the owner for the key, see NodeFor and IsOwner methods.
type Assigner struct {
	nodeID string
	mutex  *sync.RWMutex
	nodes  *consistent.Consistent
}

// NewAssigner creates the Assigner, the current node is always a member.
func NewAssigner(nodeID string, members ...string) *Assigner {
	a := &Assigner{
		nodeID: nodeID,
		mutex:  &sync.RWMutex{},
		nodes:  consistent.New(),
	}
	a.nodes.Add(nodeID)
	for _, member := range members {
		if member != nodeID {
			a.nodes.Add(member)
		}
	}
	return a
}

// NodeID returns ID of the current node.
func (a *Assigner) NodeID() string {
	return a.nodeID
}

// Nodes method returns IDs of all known nodes.
func (a *Assigner) Nodes() []string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	out := a.nodes.Hosts()
	sort.Strings(out)
	return out
}

// NodesCount method returns count of known nodes.
func (a *Assigner) NodesCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.nodes.Hosts())
}

// NodeFor returns ID of the key's owner node.
// The consistent.ErrNoHosts may occur if there is no node in the list.
func (a *Assigner) NodeFor(key string) (string, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.nodes.Get(key)
}

// IsOwner method returns true, if the node is owner of the key.
// The consistent.ErrNoHosts may occur if there is no node in the list.
func (a *Assigner) IsOwner(key string) (bool, error) {
	node, err := a.NodeFor(key)
	if err != nil {
		return false, err
	}
	return node == a.nodeID, nil
}

// HasNode returns true if the nodeID is known.
func (a *Assigner) HasNode(nodeID string) bool {
	for _, v := range a.Nodes() {
		if v == nodeID {
			return true
		}
	}
	return false
}

// AddNode registers a new cluster member.
func (a *Assigner) AddNode(nodeID string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.nodes.Add(nodeID)
}

// RemoveNode unregisters a cluster member, the current node cannot be removed.
func (a *Assigner) RemoveNode(nodeID string) bool {
	if nodeID == a.nodeID {
		return false
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.nodes.Remove(nodeID)
}
