package model

import (
	"math/rand"
	"testing"
)

func buildDataset(t *testing.T, n int) Dataset {
	t.Helper()
	var arts []Artifact
	for i := int64(1); i <= int64(n); i++ {
		arts = append(arts, Artifact{ID: i})
	}
	ds, err := NewDataset("d", arts)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	return ds
}

func TestNewDatasetRejectsDuplicateIDs(t *testing.T) {
	_, err := NewDataset("d", []Artifact{{ID: 1}, {ID: 1}})
	if err == nil {
		t.Fatalf("expected error for duplicate artifact ids")
	}
}

func TestSplitsRequiresPercentagesSumTo100(t *testing.T) {
	ds := buildDataset(t, 10)
	if _, err := ds.Splits([]int{50, 40}, rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("expected error when percentages do not sum to 100")
	}
}

func TestSplitsPartitionIsDisjointAndComplete(t *testing.T) {
	ds := buildDataset(t, 20)
	parts, err := ds.Splits([]int{50, 30, 20}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Splits failed: %v", err)
	}
	seen := map[int64]int{}
	total := 0
	for _, p := range parts {
		total += len(p.Artifacts)
		for _, a := range p.Artifacts {
			seen[a.ID]++
		}
	}
	if total != 20 {
		t.Fatalf("expected partitions to cover all 20 artifacts, got %d", total)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("artifact %d appeared in %d partitions, expected exactly 1", id, count)
		}
	}
}

func TestLabelBalancedSplitsPreservesLabelProportions(t *testing.T) {
	var arts []Artifact
	for i := int64(1); i <= 10; i++ {
		arts = append(arts, Artifact{ID: i})
	}
	ds, err := NewDataset("d", arts)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	label := func(a Artifact) string {
		if a.ID <= 5 {
			return "A"
		}
		return "B"
	}
	parts, err := ds.LabelBalancedSplits([]int{50, 50}, label, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("LabelBalancedSplits failed: %v", err)
	}
	for _, p := range parts {
		countA, countB := 0, 0
		for _, a := range p.Artifacts {
			if label(a) == "A" {
				countA++
			} else {
				countB++
			}
		}
		if countA != countB {
			t.Fatalf("expected equal label representation per partition, got A=%d B=%d", countA, countB)
		}
	}
}

func TestBalanceByRepeatEqualizesLabelCounts(t *testing.T) {
	arts := []Artifact{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}} // label A: 1,2,3 (3) label B: 4 (1)
	ds, err := NewDataset("d", arts)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	label := func(a Artifact) string {
		id := a.ID
		if src, ok := a.Records["source_artifact_id"].(int64); ok {
			id = src
		}
		if id == 4 {
			return "B"
		}
		return "A"
	}
	balanced := ds.BalanceByRepeat(label, 6)
	counts := map[string]int{}
	for _, a := range balanced.Artifacts {
		counts[label(a)]++
	}
	if counts["A"] != 6 || counts["B"] != 6 {
		t.Fatalf("expected both labels at target count 6, got %v", counts)
	}
}

func TestBalanceByRepeatDefaultsToLCM(t *testing.T) {
	arts := []Artifact{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}} // A:3 B:1 -> LCM(3,1) = 3
	ds, err := NewDataset("d", arts)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	label := func(a Artifact) string {
		id := a.ID
		if src, ok := a.Records["source_artifact_id"].(int64); ok {
			id = src
		}
		if id == 4 {
			return "B"
		}
		return "A"
	}
	balanced := ds.BalanceByRepeat(label, 0)
	counts := map[string]int{}
	for _, a := range balanced.Artifacts {
		counts[label(a)]++
	}
	if counts["A"] != 3 || counts["B"] != 3 {
		t.Fatalf("expected LCM-derived target count 3 for both labels, got %v", counts)
	}
}
