package tree

import (
	"strings"
	"testing"

	"github.com/risquanter/riskcast/internal/models"
)

func leaf(id, parent string) *models.RiskNode {
	return &models.RiskNode{
		ID:             id,
		Name:           id,
		Kind:           models.NodeKindLeaf,
		ParentID:       parent,
		OccurrenceProb: 0.1,
		Distribution: &models.DistributionSpec{
			Kind: models.DistributionInterval,
			Low:  1000,
			High: 10000,
		},
	}
}

func portfolio(id, parent string, children ...string) *models.RiskNode {
	return &models.RiskNode{
		ID:       id,
		Name:     id,
		Kind:     models.NodeKindPortfolio,
		ParentID: parent,
		ChildIDs: children,
	}
}

// threeLevel builds root -> mid -> {leaf1, leaf2}, root -> leaf3.
func threeLevel() []*models.RiskNode {
	return []*models.RiskNode{
		portfolio("root", "", "mid", "leaf3"),
		portfolio("mid", "root", "leaf1", "leaf2"),
		leaf("leaf1", "mid"),
		leaf("leaf2", "mid"),
		leaf("leaf3", "root"),
	}
}

func TestBuildIndex_Valid(t *testing.T) {
	idx, err := BuildIndex(threeLevel())
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	if idx.RootID() != "root" {
		t.Errorf("root = %q, want root", idx.RootID())
	}
	if idx.Len() != 5 {
		t.Errorf("len = %d, want 5", idx.Len())
	}
	if parent, _ := idx.ParentID("leaf1"); parent != "mid" {
		t.Errorf("parent of leaf1 = %q, want mid", parent)
	}
	children := idx.Children("mid")
	if len(children) != 2 || children[0] != "leaf1" || children[1] != "leaf2" {
		t.Errorf("children of mid = %v, want [leaf1 leaf2]", children)
	}
}

func TestBuildIndex_AncestorPath(t *testing.T) {
	idx, err := BuildIndex(threeLevel())
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	path := idx.AncestorPath("leaf1")
	want := []string{"leaf1", "mid", "root"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}

	if path := idx.AncestorPath("root"); len(path) != 1 || path[0] != "root" {
		t.Errorf("root path = %v, want [root]", path)
	}
	if path := idx.AncestorPath("ghost"); path != nil {
		t.Errorf("unknown node path = %v, want nil", path)
	}
}

func TestBuildIndex_SubtreeDepth(t *testing.T) {
	idx, err := BuildIndex(threeLevel())
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	if got := idx.Subtree("root", 0); len(got) != 1 {
		t.Errorf("depth 0 = %v, want just root", got)
	}
	if got := idx.Subtree("root", 1); len(got) != 3 {
		t.Errorf("depth 1 = %v, want root+mid+leaf3", got)
	}
	if got := idx.Subtree("root", -1); len(got) != 5 {
		t.Errorf("unbounded = %v, want all 5", got)
	}

	leaves := idx.LeafIDs("mid")
	if len(leaves) != 2 {
		t.Errorf("leaves under mid = %v, want 2", leaves)
	}
}

func TestBuildIndex_AccumulatesErrors(t *testing.T) {
	// Three independent problems: bad occurrence probability, dangling child
	// reference, and a missing distribution. All must surface at once.
	bad := leaf("bad", "root")
	bad.OccurrenceProb = 1.5
	bad.Distribution = nil

	nodes := []*models.RiskNode{
		portfolio("root", "", "bad", "ghost"),
		bad,
	}

	_, err := BuildIndex(nodes)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	verrs, ok := err.(*models.ValidationErrors)
	if !ok {
		t.Fatalf("expected *models.ValidationErrors, got %T", err)
	}
	if len(verrs.Errors) < 3 {
		t.Errorf("expected at least 3 accumulated errors, got %d: %v", len(verrs.Errors), err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should mention dangling reference: %v", err)
	}
}

func TestBuildIndex_BidirectionalConsistency(t *testing.T) {
	// leaf1 claims root as parent, but root does not list leaf1.
	nodes := []*models.RiskNode{
		portfolio("root", ""),
		leaf("leaf1", "root"),
	}

	_, err := BuildIndex(nodes)
	if err == nil {
		t.Fatal("expected validation failure for unclaimed child")
	}
	if !strings.Contains(err.Error(), "does not list") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildIndex_RejectsCycle(t *testing.T) {
	// a and b parent each other; root is valid on its own.
	nodes := []*models.RiskNode{
		portfolio("root", ""),
		portfolio("a", "b", "b"),
		portfolio("b", "a", "a"),
	}

	_, err := BuildIndex(nodes)
	if err == nil {
		t.Fatal("expected validation failure for cycle")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildIndex_RejectsMultipleRoots(t *testing.T) {
	nodes := []*models.RiskNode{
		portfolio("root1", ""),
		portfolio("root2", ""),
	}

	_, err := BuildIndex(nodes)
	if err == nil {
		t.Fatal("expected validation failure for two roots")
	}
	if !strings.Contains(err.Error(), "exactly one root") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildIndex_RejectsDuplicateIDs(t *testing.T) {
	nodes := []*models.RiskNode{
		portfolio("root", "", "a"),
		leaf("a", "root"),
		leaf("a", "root"),
	}

	_, err := BuildIndex(nodes)
	if err == nil {
		t.Fatal("expected validation failure for duplicate id")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildIndex_Empty(t *testing.T) {
	if _, err := BuildIndex(nil); err == nil {
		t.Fatal("expected validation failure for empty tree")
	}
}
