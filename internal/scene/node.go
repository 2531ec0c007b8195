// Package scene is the in-memory scene graph the baker reads and temporarily
// rewrites: mesh nodes with indexed triangle geometry and materials, lights, and
// the per-node flags that opt nodes out of parts of the bake.
package scene

import (
	"iter"

	"github.com/Faultbox/lightbake/pkg/math"
)

// Kind identifies what a node carries.
type Kind uint8

const (
	KindGroup Kind = iota
	KindMesh
	KindLight
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	default:
		return "group"
	}
}

// Flags opt a node (and its subtree) out of bake stages.
type Flags uint8

const (
	// FlagIgnoreForAtlas keeps the mesh in the staged scene but gives it no
	// atlas region, so it bounces light without receiving a lightmap.
	FlagIgnoreForAtlas Flags = 1 << iota
	// FlagIgnoreForUV2 forbids automatic UV2 layout; the mesh must already
	// carry UV2 coordinates.
	FlagIgnoreForUV2
	// FlagReadOnly leaves the node untouched: no staging, no atlas. It is
	// still rendered by probes as-is.
	FlagReadOnly
)

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Node is one element of the scene graph.
type Node struct {
	Name     string
	Kind     Kind
	Flags    Flags
	Visible  bool
	Local    math.Mat4
	Mesh     *Mesh
	Light    *Light
	Children []*Node

	parent *Node
}

// Mesh pairs geometry with one material per geometry group.
type Mesh struct {
	Geometry  *Geometry
	Materials []*Material
}

// NewGroup creates an empty visible group node.
func NewGroup(name string) *Node {
	return &Node{Name: name, Kind: KindGroup, Visible: true, Local: math.Identity()}
}

// NewMeshNode creates a visible mesh node.
func NewMeshNode(name string, geometry *Geometry, materials ...*Material) *Node {
	return &Node{
		Name:    name,
		Kind:    KindMesh,
		Visible: true,
		Local:   math.Identity(),
		Mesh:    &Mesh{Geometry: geometry, Materials: materials},
	}
}

// NewLightNode creates a visible light node.
func NewLightNode(name string, light *Light) *Node {
	return &Node{Name: name, Kind: KindLight, Visible: true, Local: math.Identity(), Light: light}
}

// Add attaches children to n, detaching them from any previous parent.
func (n *Node) Add(children ...*Node) {
	for _, c := range children {
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = n
		n.Children = append(n.Children, c)
	}
}

// Remove detaches child from n. It reports whether child was found.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Parent returns the node's parent, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// WorldMatrix composes the local matrices from the root down to n.
func (n *Node) WorldMatrix() math.Mat4 {
	m := n.Local
	for p := n.parent; p != nil; p = p.parent {
		m = p.Local.Mul(m)
	}
	return m
}

// Find returns the first node in the subtree with the given name.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Traverse yields visible nodes depth-first, parents before children.
// Invisible nodes hide their subtree. Read-only subtrees are skipped unless
// includeReadOnly is set.
func Traverse(root *Node, includeReadOnly bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		walk(root, includeReadOnly, yield)
	}
}

func walk(n *Node, includeReadOnly bool, yield func(*Node) bool) bool {
	if n == nil || !n.Visible {
		return true
	}
	if !includeReadOnly && n.Flags.Has(FlagReadOnly) {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, includeReadOnly, yield) {
			return false
		}
	}
	return true
}

// Meshes yields visible mesh nodes with geometry.
func Meshes(root *Node, includeReadOnly bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range Traverse(root, includeReadOnly) {
			if n.Kind == KindMesh && n.Mesh != nil && n.Mesh.Geometry != nil {
				if !yield(n) {
					return
				}
			}
		}
	}
}

// Lights yields visible light nodes.
func Lights(root *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range Traverse(root, true) {
			if n.Kind == KindLight && n.Light != nil {
				if !yield(n) {
					return
				}
			}
		}
	}
}

// MaterialForFace returns the material that shades the given face.
func (m *Mesh) MaterialForFace(face int) *Material {
	if len(m.Materials) == 0 {
		return nil
	}
	if len(m.Geometry.Groups) == 0 {
		return m.Materials[0]
	}
	for _, g := range m.Geometry.Groups {
		if face*3 >= g.Start && face*3 < g.Start+g.Count {
			if g.MaterialIndex < len(m.Materials) {
				return m.Materials[g.MaterialIndex]
			}
			return nil
		}
	}
	return nil
}
