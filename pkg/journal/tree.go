package journal

import (
	"sort"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/canonical"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// NodeIndex addresses a node inside the tree arena. Interior references are
// integer-indexed; nodes never hold owning back-pointers.
type NodeIndex uint32

// RootIndex is the arena slot of the root policy group.
const RootIndex NodeIndex = 0

// LeafNode is a device leaf: the device identity and its signing key.
type LeafNode struct {
	Device    identifiers.DeviceId `json:"device"`
	PublicKey []byte               `json:"public_key"`
}

// Policy is the threshold rule of an interior node: Threshold of Total
// member signatures, verified against the group public key.
type Policy struct {
	Threshold      uint32 `json:"threshold"`
	Total          uint32 `json:"total"`
	GroupPublicKey []byte `json:"group_public_key"`
}

// node is one arena slot. Exactly one of leaf/policy is set; free slots have
// neither and sit on the freelist.
type node struct {
	parent   NodeIndex
	children []NodeIndex
	leaf     *LeafNode
	policy   *Policy
	free     bool
}

// TreeState is the deterministic reduction of an op log: a ratchet tree of
// device leaves and policy-group interior nodes, the current epoch, and a
// canonical commitment hash. The commitment is a pure function of the
// logical tree, not of arena slot numbering, so adding and then removing the
// same leaf restores the original commitment.
type TreeState struct {
	arena    []node
	freelist []NodeIndex
	byDevice map[identifiers.DeviceId]NodeIndex
	epoch    identifiers.Epoch
}

// NewTreeState returns a tree holding only a root policy group with the
// given policy.
func NewTreeState(rootPolicy Policy) *TreeState {
	t := &TreeState{byDevice: make(map[identifiers.DeviceId]NodeIndex)}
	p := rootPolicy
	t.arena = append(t.arena, node{parent: RootIndex, policy: &p})
	return t
}

// CurrentEpoch returns the highest epoch a RotateEpoch op has established.
func (t *TreeState) CurrentEpoch() identifiers.Epoch { return t.epoch }

// Membership returns the device leaves in canonical (device id) order.
func (t *TreeState) Membership() []LeafNode {
	leaves := make([]LeafNode, 0, len(t.byDevice))
	for _, idx := range t.byDevice {
		leaves = append(leaves, *t.arena[idx].leaf)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Device.String() < leaves[j].Device.String()
	})
	return leaves
}

// PolicyAt returns the policy of an interior node.
func (t *TreeState) PolicyAt(idx NodeIndex) (Policy, error) {
	if int(idx) >= len(t.arena) || t.arena[idx].free || t.arena[idx].policy == nil {
		return Policy{}, aerr.Internal("no policy node at index %d", idx)
	}
	return *t.arena[idx].policy, nil
}

// RootPolicy returns the policy of the root group.
func (t *TreeState) RootPolicy() Policy {
	p, _ := t.PolicyAt(RootIndex)
	return p
}

// HasDevice reports whether the device is a current leaf.
func (t *TreeState) HasDevice(d identifiers.DeviceId) bool {
	_, ok := t.byDevice[d]
	return ok
}

func (t *TreeState) addLeaf(leaf LeafNode, under NodeIndex) error {
	if int(under) >= len(t.arena) || t.arena[under].free || t.arena[under].policy == nil {
		return aerr.Internal("add leaf: parent %d is not a policy node", under)
	}
	if _, ok := t.byDevice[leaf.Device]; ok {
		return aerr.Internal("add leaf: device %s already present", leaf.Device)
	}
	l := leaf
	var idx NodeIndex
	if n := len(t.freelist); n > 0 {
		idx = t.freelist[n-1]
		t.freelist = t.freelist[:n-1]
		t.arena[idx] = node{parent: under, leaf: &l}
	} else {
		idx = NodeIndex(len(t.arena))
		t.arena = append(t.arena, node{parent: under, leaf: &l})
	}
	t.arena[under].children = append(t.arena[under].children, idx)
	t.byDevice[leaf.Device] = idx
	return nil
}

func (t *TreeState) removeLeaf(device identifiers.DeviceId) error {
	idx, ok := t.byDevice[device]
	if !ok {
		return aerr.Internal("remove leaf: device %s not present", device)
	}
	parent := t.arena[idx].parent
	children := t.arena[parent].children
	for i, c := range children {
		if c == idx {
			t.arena[parent].children = append(children[:i], children[i+1:]...)
			break
		}
	}
	t.arena[idx] = node{free: true}
	t.freelist = append(t.freelist, idx)
	delete(t.byDevice, device)
	return nil
}

func (t *TreeState) changePolicy(idx NodeIndex, policy Policy) error {
	if int(idx) >= len(t.arena) || t.arena[idx].free || t.arena[idx].policy == nil {
		return aerr.Internal("change policy: node %d is not a policy node", idx)
	}
	p := policy
	t.arena[idx].policy = &p
	return nil
}

func (t *TreeState) rotateEpoch(e identifiers.Epoch) {
	t.epoch = t.epoch.Max(e)
}

// treeExport is the canonical logical form of the tree: policy groups with
// their leaves, sorted, independent of arena slot assignment.
type treeExport struct {
	Epoch  identifiers.Epoch `json:"epoch"`
	Root   groupExport       `json:"root"`
}

type groupExport struct {
	Policy Policy        `json:"policy"`
	Groups []groupExport `json:"groups"`
	Leaves []LeafNode    `json:"leaves"`
}

func (t *TreeState) exportGroup(idx NodeIndex) groupExport {
	g := groupExport{Policy: *t.arena[idx].policy}
	for _, c := range t.arena[idx].children {
		child := t.arena[c]
		if child.free {
			continue
		}
		if child.leaf != nil {
			g.Leaves = append(g.Leaves, *child.leaf)
		} else {
			g.Groups = append(g.Groups, t.exportGroup(c))
		}
	}
	sort.Slice(g.Leaves, func(i, j int) bool {
		return g.Leaves[i].Device.String() < g.Leaves[j].Device.String()
	})
	return g
}

// Commitment returns the 32-byte canonical hash of the tree state.
func (t *TreeState) Commitment() (identifiers.Hash32, error) {
	export := treeExport{Epoch: t.epoch, Root: t.exportGroup(RootIndex)}
	h, err := canonical.Hash(export)
	if err != nil {
		return identifiers.Hash32{}, aerr.Wrap(aerr.CodeInternal, err, "tree commitment")
	}
	return h, nil
}

// Clone returns a deep copy; reductions mutate copies, never shared state.
func (t *TreeState) Clone() *TreeState {
	c := &TreeState{
		arena:    make([]node, len(t.arena)),
		freelist: append([]NodeIndex(nil), t.freelist...),
		byDevice: make(map[identifiers.DeviceId]NodeIndex, len(t.byDevice)),
		epoch:    t.epoch,
	}
	for i, n := range t.arena {
		cn := node{parent: n.parent, free: n.free}
		cn.children = append([]NodeIndex(nil), n.children...)
		if n.leaf != nil {
			l := *n.leaf
			cn.leaf = &l
		}
		if n.policy != nil {
			p := *n.policy
			cn.policy = &p
		}
		c.arena[i] = cn
	}
	for k, v := range t.byDevice {
		c.byDevice[k] = v
	}
	return c
}
