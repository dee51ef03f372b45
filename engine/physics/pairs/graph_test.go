package pairs

import (
	"testing"

	"github.com/nmxmxh/dof-engine/engine/ids"
)

func ref(key uint32) ids.StableRef { return ids.StableRef{Key: key, Generation: 1} }

func TestUpdateFromBroadphaseAddsAndRemovesEdges(t *testing.T) {
	g := NewGraph()
	a, b := ref(1), ref(2)
	g.AddNode(a, Mobile)
	g.AddNode(b, Mobile)

	g.UpdateFromBroadphase([]RefPair{{A: a, B: b}}, nil)
	if _, ok := g.Pair(a, b); !ok {
		t.Fatal("expected pair to exist after gain")
	}

	g.UpdateFromBroadphase(nil, []RefPair{{A: a, B: b}})
	if _, ok := g.Pair(a, b); ok {
		t.Fatal("expected pair to be removed after loss")
	}
}

func TestUpdateFromBroadphaseGainAndLossInSameBatchIsNoOp(t *testing.T) {
	g := NewGraph()
	a, b := ref(1), ref(2)
	g.AddNode(a, Mobile)
	g.AddNode(b, Mobile)

	var logged bool
	g.Log = func(format string, args ...any) { logged = true }

	g.UpdateFromBroadphase([]RefPair{{A: a, B: b}}, []RefPair{{A: a, B: b}})
	if _, ok := g.Pair(a, b); ok {
		t.Fatal("expected no pair after same-batch gain+loss")
	}
	if !logged {
		t.Fatal("expected the degenerate case to be logged")
	}
}

func TestRemoveNodeDropsIncidentPairs(t *testing.T) {
	g := NewGraph()
	a, b := ref(1), ref(2)
	g.AddNode(a, Mobile)
	g.AddNode(b, Mobile)
	g.UpdateFromBroadphase([]RefPair{{A: a, B: b}}, nil)

	g.RemoveNode(a)
	if _, ok := g.Pair(a, b); ok {
		t.Fatal("expected pair removed along with node")
	}
	if len(g.Pairs()) != 0 {
		t.Fatalf("expected no pairs left, got %d", len(g.Pairs()))
	}
}

func TestIslandsSeparatesDisjointGroups(t *testing.T) {
	g := NewGraph()
	a, b, c, d := ref(1), ref(2), ref(3), ref(4)
	for _, r := range []ids.StableRef{a, b, c, d} {
		g.AddNode(r, Mobile)
	}
	g.UpdateFromBroadphase([]RefPair{{A: a, B: b}, {A: c, B: d}}, nil)

	islands := g.Islands()
	if len(islands) != 2 {
		t.Fatalf("expected 2 islands, got %d", len(islands))
	}
	for _, island := range islands {
		if len(island) != 2 {
			t.Fatalf("expected each island to have 2 members, got %d", len(island))
		}
	}
}

func TestImmobileNodeDoesNotMergeIslands(t *testing.T) {
	g := NewGraph()
	a, ground, b := ref(1), ref(2), ref(3)
	g.AddNode(a, Mobile)
	g.AddNode(ground, Immobile)
	g.AddNode(b, Mobile)
	g.UpdateFromBroadphase([]RefPair{{A: a, B: ground}, {A: ground, B: b}}, nil)

	islands := g.Islands()
	if len(islands) != 2 {
		t.Fatalf("expected 2 islands separated by the immobile node, got %d", len(islands))
	}
	for _, island := range islands {
		found := false
		for _, r := range island {
			if r == ground {
				found = true
			}
		}
		if !found {
			t.Fatal("expected the immobile node to appear in every island it touches")
		}
	}
}

func TestChangeMobilityAffectsFutureIslandComputation(t *testing.T) {
	g := NewGraph()
	a, b, c := ref(1), ref(2), ref(3)
	g.AddNode(a, Mobile)
	g.AddNode(b, Mobile)
	g.AddNode(c, Mobile)
	g.UpdateFromBroadphase([]RefPair{{A: a, B: b}, {A: b, B: c}}, nil)

	if islands := g.Islands(); len(islands) != 1 {
		t.Fatalf("expected single connected island, got %d", len(islands))
	}

	g.ChangeMobility(b, Immobile)
	islands := g.Islands()
	if len(islands) != 2 {
		t.Fatalf("expected immobilizing the bridge node to split the island, got %d", len(islands))
	}
}
