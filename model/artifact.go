// Package model holds the data types shared across the loading engine: the
// artifacts a dataset enumerates, and the datasets that group them.
package model

import (
	"fmt"
	"math/rand"
	"sort"
)

// Artifact is the source unit from which many fine samples can be drawn (a
// patient, a slide, a shard — whatever the caller's domain calls it).
// Equality and ordering are by ID alone; Records is an opaque bag consumed
// only by the caller's own callbacks.
type Artifact struct {
	ID      int64
	Records map[string]any
}

// Less orders artifacts by ID, giving deterministic iteration in tests.
func (a Artifact) Less(other Artifact) bool { return a.ID < other.ID }

func (a Artifact) String() string { return fmt.Sprintf("artifact#%d", a.ID) }

// Dataset is a named, immutable set of artifacts with unique IDs.
type Dataset struct {
	Name      string
	Artifacts []Artifact
}

// NewDataset validates uniqueness of artifact IDs and returns a Dataset.
func NewDataset(name string, artifacts []Artifact) (Dataset, error) {
	seen := make(map[int64]struct{}, len(artifacts))
	for _, a := range artifacts {
		if _, ok := seen[a.ID]; ok {
			return Dataset{}, fmt.Errorf("model: duplicate artifact id %d", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	cp := make([]Artifact, len(artifacts))
	copy(cp, artifacts)
	return Dataset{Name: name, Artifacts: cp}, nil
}

// Sorted returns the dataset's artifacts ordered by ID, without mutating the
// dataset.
func (d Dataset) Sorted() []Artifact {
	cp := make([]Artifact, len(d.Artifacts))
	copy(cp, d.Artifacts)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Less(cp[j]) })
	return cp
}

// LabelFunc maps an artifact to a label used by label-balanced operations.
type LabelFunc func(Artifact) string

// Splits partitions the dataset into len(percentages) datasets whose sizes
// are proportional to percentages, which must sum to 100. Artifacts are
// shuffled first so splits are not influenced by input order; partitions are
// pairwise disjoint and their union equals the original artifact set.
func (d Dataset) Splits(percentages []int, rng *rand.Rand) ([]Dataset, error) {
	sum := 0
	for _, p := range percentages {
		sum += p
	}
	if sum != 100 {
		return nil, fmt.Errorf("model: split percentages must sum to 100, got %d", sum)
	}
	shuffled := make([]Artifact, len(d.Artifacts))
	copy(shuffled, d.Artifacts)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	chunks := splitList(shuffled, percentages)
	out := make([]Dataset, len(chunks))
	for i, c := range chunks {
		ds, err := NewDataset(d.Name, c)
		if err != nil {
			return nil, err
		}
		out[i] = ds
	}
	return out, nil
}

// splitList divides list into contiguous slices sized by percentage; the
// final partition absorbs any remainder so the partition lengths always sum
// to len(list).
func splitList(list []Artifact, percentages []int) [][]Artifact {
	out := make([][]Artifact, len(percentages))
	picked := 0
	for i, pct := range percentages {
		var end int
		if i == len(percentages)-1 {
			end = len(list)
		} else {
			size := pct * len(list) / 100
			end = picked + size
			if end > len(list) {
				end = len(list)
			}
		}
		out[i] = list[picked:end]
		picked = end
	}
	return out
}

// LabelBalancedSplits splits the dataset the same way Splits does, but
// partitions each label's artifacts independently before recombining, so
// every partition carries a proportional share of each label.
func (d Dataset) LabelBalancedSplits(percentages []int, label LabelFunc, rng *rand.Rand) ([]Dataset, error) {
	sum := 0
	for _, p := range percentages {
		sum += p
	}
	if sum != 100 {
		return nil, fmt.Errorf("model: split percentages must sum to 100, got %d", sum)
	}
	byLabel := make(map[string][]Artifact)
	var labelOrder []string
	for _, a := range d.Artifacts {
		l := label(a)
		if _, ok := byLabel[l]; !ok {
			labelOrder = append(labelOrder, l)
		}
		byLabel[l] = append(byLabel[l], a)
	}
	sort.Strings(labelOrder)

	combined := make([][]Artifact, len(percentages))
	for _, l := range labelOrder {
		group := append([]Artifact(nil), byLabel[l]...)
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		parts := splitList(group, percentages)
		for i, p := range parts {
			combined[i] = append(combined[i], p...)
		}
	}
	out := make([]Dataset, len(combined))
	for i, c := range combined {
		ds, err := NewDataset(d.Name, c)
		if err != nil {
			return nil, err
		}
		out[i] = ds
	}
	return out, nil
}

// BalanceByRepeat returns a new dataset in which every label occurs exactly
// targetPerClass times. Each artifact of a label with frequency f is copied
// targetPerClass/f times, and the first targetPerClass%f artifacts of that
// label once more. Every copy gets a fresh ID (k*10^d plus the original ID,
// d being the digit count of the largest original ID) and carries the
// original ID in Records["source_artifact_id"]. If targetPerClass is 0, the
// least common multiple of the observed label frequencies is used so every
// label's count divides evenly.
func (d Dataset) BalanceByRepeat(label LabelFunc, targetPerClass int) Dataset {
	freq := make(map[string]int)
	labelOf := make(map[int64]string, len(d.Artifacts))
	for _, a := range d.Artifacts {
		l := label(a)
		labelOf[a.ID] = l
		freq[l]++
	}
	if targetPerClass == 0 {
		freqs := make([]int, 0, len(freq))
		seen := make(map[int]struct{})
		for _, f := range freq {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				freqs = append(freqs, f)
			}
		}
		targetPerClass = lcmAll(freqs)
	}

	maxID := int64(0)
	for _, a := range d.Artifacts {
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	digits := len(fmt.Sprintf("%d", maxID))
	shift := int64(1)
	for i := 0; i < digits; i++ {
		shift *= 10
	}

	var out []Artifact
	done := make(map[string]int)
	for _, a := range d.Artifacts {
		l := labelOf[a.ID]
		repeat := targetPerClass / freq[l]
		if done[l] < targetPerClass%freq[l] {
			repeat++
		}
		done[l]++
		for k := 0; k < repeat; k++ {
			records := make(map[string]any, len(a.Records)+1)
			for key, v := range a.Records {
				records[key] = v
			}
			records["source_artifact_id"] = a.ID
			out = append(out, Artifact{ID: int64(k)*shift + a.ID, Records: records})
		}
	}
	return Dataset{Name: d.Name, Artifacts: out}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

func lcmAll(values []int) int {
	if len(values) == 0 {
		return 0
	}
	result := values[0]
	for _, v := range values[1:] {
		result = lcm(result, v)
	}
	return result
}
