// Package fingerprint groups source files by exact content so byte-identical
// files never reach the visual comparison stage.
package fingerprint

import (
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/svg-dedupe/backend/internal/models"
)

// Of returns the 128-bit XXH3 digest of content.
func Of(content []byte) models.Fingerprint {
	return xxh3.Hash128(content).Bytes()
}

// Group is one set of files sharing a fingerprint, in lexical name order.
type Group struct {
	Fingerprint models.Fingerprint
	Files       []models.SourceFile
}

// Groups holds fingerprint groups in discovery order.
type Groups []Group

// Index fingerprints every file and groups identical content together.
// Names are visited in lexical order, which fixes both group order and
// member order for a given input.
func Index(files map[string][]byte) Groups {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var groups Groups
	pos := make(map[models.Fingerprint]int, len(names))
	for _, name := range names {
		content := files[name]
		fp := Of(content)
		sf := models.SourceFile{Name: name, Content: content, Fingerprint: fp}

		i, ok := pos[fp]
		if !ok {
			pos[fp] = len(groups)
			groups = append(groups, Group{Fingerprint: fp, Files: []models.SourceFile{sf}})
			continue
		}
		groups[i].Files = append(groups[i].Files, sf)
	}
	return groups
}

// ExactPairs returns every unordered pair inside each group of two or more
// members, tagged with the hash origin.
func (g Groups) ExactPairs() []models.DuplicateResult {
	var pairs []models.DuplicateResult
	for _, group := range g {
		for i := 0; i < len(group.Files); i++ {
			for j := i + 1; j < len(group.Files); j++ {
				pairs = append(pairs, models.DuplicateResult{
					NameA:  group.Files[i].Name,
					NameB:  group.Files[j].Name,
					Origin: models.OriginHash,
				})
			}
		}
	}
	return pairs
}

// ReducedSet returns one representative file per group.
func (g Groups) ReducedSet() []models.SourceFile {
	reduced := make([]models.SourceFile, 0, len(g))
	for _, group := range g {
		reduced = append(reduced, group.Files[0])
	}
	return reduced
}

// FileCount is the number of files across all groups.
func (g Groups) FileCount() int {
	n := 0
	for _, group := range g {
		n += len(group.Files)
	}
	return n
}
