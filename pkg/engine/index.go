package engine

import (
	"sort"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/wa-observability/wa/pkg/patterns"
)

// bloomFalsePositiveRate is the target false-positive rate for the Level-1
// quick-reject filter; false positives only cost an unnecessary Level-2
// scan, never a missed detection.
const bloomFalsePositiveRate = 0.01

// index is the compiled, read-only EngineIndex built once per engine
// lifetime from a patterns.Library.
type index struct {
	rules         []patterns.RuleDef
	ruleIndexByID map[string]int
	anchorMatcher *ahocorasick.Trie
	anchorToRules map[string][]int
	firstBytes    []byte
	bloomFilter   *bloom.BloomFilter
	anchorLengths []int
}

// buildIndex compiles a library into a read-only EngineIndex. Deterministic:
// identical libraries produce identical indexes.
func buildIndex(lib *patterns.Library) *index {
	rules := lib.Rules()

	ruleIndexByID := make(map[string]int, len(rules))
	anchorSet := make(map[string]bool)
	anchorToRules := make(map[string][]int)

	for i, r := range rules {
		ruleIndexByID[r.ID] = i
		for _, a := range r.Anchors {
			if !anchorSet[a] {
				anchorSet[a] = true
			}
			anchorToRules[a] = append(anchorToRules[a], i)
		}
	}

	anchorList := make([]string, 0, len(anchorSet))
	for a := range anchorSet {
		anchorList = append(anchorList, a)
	}
	sort.Strings(anchorList) // deterministic compilation

	firstByteSet := make(map[byte]bool)
	lengthSet := make(map[int]bool)
	var bf *bloom.BloomFilter
	if len(anchorList) > 0 {
		bf = bloom.NewWithEstimates(uint(len(anchorList)), bloomFalsePositiveRate)
	}
	for _, a := range anchorList {
		if len(a) == 0 {
			continue
		}
		firstByteSet[a[0]] = true
		lengthSet[len(a)] = true
		if bf != nil {
			bf.AddString(a)
		}
	}

	firstBytes := make([]byte, 0, len(firstByteSet))
	for b := range firstByteSet {
		firstBytes = append(firstBytes, b)
	}
	sort.Slice(firstBytes, func(i, j int) bool { return firstBytes[i] < firstBytes[j] })

	anchorLengths := make([]int, 0, len(lengthSet))
	for l := range lengthSet {
		anchorLengths = append(anchorLengths, l)
	}
	sort.Ints(anchorLengths)

	var trie *ahocorasick.Trie
	if len(anchorList) > 0 {
		trie = ahocorasick.NewTrieBuilder().AddStrings(anchorList).Build()
	}

	return &index{
		rules:         rules,
		ruleIndexByID: ruleIndexByID,
		anchorMatcher: trie,
		anchorToRules: anchorToRules,
		firstBytes:    firstBytes,
		bloomFilter:   bf,
		anchorLengths: anchorLengths,
	}
}

// quickReject implements the Level-1 Bloom check: if it returns true, the
// text cannot contain any anchor and detect must return no detections.
// False positives (returning false when there is in fact no anchor) are
// acceptable; false negatives are not.
func (idx *index) quickReject(text string) bool {
	if len(idx.anchorLengths) == 0 || idx.bloomFilter == nil {
		return true
	}
	b := []byte(text)
	for i := 0; i < len(b); i++ {
		if !containsByte(idx.firstBytes, b[i]) {
			continue
		}
		for _, length := range idx.anchorLengths {
			if i+length > len(b) {
				continue
			}
			window := string(b[i : i+length])
			if idx.bloomFilter.TestString(window) {
				return false
			}
		}
	}
	return true
}

func containsByte(sorted []byte, target byte) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= target })
	return i < len(sorted) && sorted[i] == target
}
