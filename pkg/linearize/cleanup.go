// Block merging.
// A block reached only by an unconditional branch from its predecessor is
// folded into that predecessor.
package linearize

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

// MergeBlocks folds single-predecessor branch targets into their
// predecessor and renumbers the surviving blocks. It expects reverse
// postorder (run Linearize first).
func MergeBlocks(f *wir.Function) {
	if len(f.Blocks) == 0 {
		return
	}
	for changed := true; changed; {
		changed = false
		preds := countPredecessors(f)
		for i, b := range f.Blocks {
			br, ok := b.Terminator().(wir.Ibr)
			if !ok || br.Target == wir.Block(i) || br.Target == f.Entry || preds[br.Target] != 1 {
				continue
			}
			succ := f.Blocks[br.Target]
			if succ == nil {
				continue
			}
			b.Instrs = append(b.Instrs[:len(b.Instrs)-1], succ.Instrs...)
			// leave an unreachable husk; Linearize removes it
			f.Blocks[br.Target] = &wir.BasicBlock{Name: succ.Name, Instrs: []wir.Instr{wir.Iunreachable{}}}
			changed = true
			break
		}
	}
	Linearize(f)
}

// countPredecessors returns the number of branch edges into each block.
func countPredecessors(f *wir.Function) []int {
	preds := make([]int, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, s := range blockSuccessors(b) {
			preds[s]++
		}
	}
	return preds
}
