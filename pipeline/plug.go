package pipeline

import (
	"strings"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// Plug is a named port of a node, mirroring one controller field.
type Plug struct {
	Name     string
	Output   bool
	Optional bool
	// Enabled is user (or switch) intent; disabled plugs never activate.
	Enabled   bool
	Activated bool
	// HasDefault marks a plug whose value was given explicitly, which
	// activates it without a link.
	HasDefault bool
	LinksFrom  []*Link
	LinksTo    []*Link

	node *Node
}

// Node returns the node owning the plug.
func (pl *Plug) Node() *Node { return pl.node }

// IsLinked reports whether the plug has any link.
func (pl *Plug) IsLinked() bool { return len(pl.LinksFrom) > 0 || len(pl.LinksTo) > 0 }

func (pl *Plug) removeLink(l *Link) {
	pl.LinksFrom = removeLinkFrom(pl.LinksFrom, l)
	pl.LinksTo = removeLinkFrom(pl.LinksTo, l)
}

func removeLinkFrom(links []*Link, l *Link) []*Link {
	for i, x := range links {
		if x == l {
			return append(links[:i:i], links[i+1:]...)
		}
	}
	return links
}

// PlugRef addresses a plug inside a pipeline. An empty Node designates the
// pipeline's own parameters.
type PlugRef struct {
	Node string `yaml:"node,omitempty" json:"node,omitempty"`
	Plug string `yaml:"plug" json:"plug"`
}

func (r PlugRef) String() string {
	if r.Node == "" {
		return r.Plug
	}
	return r.Node + "." + r.Plug
}

// ParsePlugRef parses "node.plug" or "plug" (a pipeline parameter).
func ParsePlugRef(s string) (PlugRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlugRef{}, errors.LinkError(s, "empty plug reference")
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return PlugRef{Plug: s}, nil
	}
	if i == 0 || i == len(s)-1 {
		return PlugRef{}, errors.LinkError(s, "malformed plug reference")
	}
	return PlugRef{Node: s[:i], Plug: s[i+1:]}, nil
}

// Link is a directed edge between two plugs.
type Link struct {
	Src PlugRef
	Dst PlugRef
	// Weak links take part in activation only when a plug has nothing but
	// weak links.
	Weak      bool
	Activated bool
	// Shadowed marks an active incoming link overridden by a later one on
	// the same plug.
	Shadowed bool

	src, dst *Plug
	seq      int
	detached bool
	subs     [2]controller.Subscription
}

// ParseLink parses "src_node.src_plug->dst_node.dst_plug".
func ParseLink(s string) (Link, error) {
	left, right, ok := strings.Cut(s, "->")
	if !ok {
		return Link{}, errors.LinkError(s, "expected src->dst")
	}
	src, err := ParsePlugRef(left)
	if err != nil {
		return Link{}, errors.LinkError(s, "bad source").WithCause(err)
	}
	dst, err := ParsePlugRef(right)
	if err != nil {
		return Link{}, errors.LinkError(s, "bad destination").WithCause(err)
	}
	return Link{Src: src, Dst: dst}, nil
}

func (l *Link) String() string {
	return l.Src.String() + "->" + l.Dst.String()
}

// SrcPlug returns the source plug.
func (l *Link) SrcPlug() *Plug { return l.src }

// DstPlug returns the destination plug.
func (l *Link) DstPlug() *Plug { return l.dst }

// other returns the end of l opposite to pl.
func (l *Link) other(pl *Plug) *Plug {
	if l.src == pl {
		return l.dst
	}
	return l.src
}
