// Package linearize orders the basic blocks of generated wide IR for
// emission. Blocks are placed in reverse postorder from the entry so that
// branches mostly fall through; blocks the entry cannot reach (the
// "unreachable" continuations left behind by return, break and exit) are
// dropped. Also includes branch tunneling and block merging.
package linearize

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

// Module runs the cleanup pipeline over every function of m.
func Module(m *wir.Module) {
	for _, f := range m.Funcs {
		Tunnel(f)
		Linearize(f)
		MergeBlocks(f)
	}
}

// Linearize reorders f's blocks in reverse postorder from the entry and
// discards blocks that cannot be reached. The entry becomes block 0.
func Linearize(f *wir.Function) {
	if len(f.Blocks) == 0 {
		return
	}
	l := &linearizer{fn: f}
	l.computeOrder()
	l.renumber()
}

type linearizer struct {
	fn    *wir.Function
	order []wir.Block // reverse postorder
}

// computeOrder computes reverse postorder of the reachable blocks.
func (l *linearizer) computeOrder() {
	visited := make([]bool, len(l.fn.Blocks))
	var postorder []wir.Block

	var dfs func(b wir.Block)
	dfs = func(b wir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		succs := blockSuccessors(l.fn.Blocks[b])
		// visit the fall-through candidate last so it lands right after b
		for i := len(succs) - 1; i >= 0; i-- {
			dfs(succs[i])
		}
		postorder = append(postorder, b)
	}
	dfs(l.fn.Entry)

	l.order = make([]wir.Block, len(postorder))
	for i, b := range postorder {
		l.order[len(postorder)-1-i] = b
	}
}

func blockSuccessors(b *wir.BasicBlock) []wir.Block {
	if t := b.Terminator(); t != nil {
		return wir.Successors(t)
	}
	return nil
}

// renumber rewrites the block list in the computed order and remaps every
// branch target.
func (l *linearizer) renumber() {
	remap := make(map[wir.Block]wir.Block, len(l.order))
	blocks := make([]*wir.BasicBlock, len(l.order))
	for i, old := range l.order {
		remap[old] = wir.Block(i)
		blocks[i] = l.fn.Blocks[old]
	}
	for _, b := range blocks {
		retarget(b, func(t wir.Block) wir.Block { return remap[t] })
	}
	l.fn.Blocks = blocks
	l.fn.Entry = 0
}

// retarget rewrites the branch targets of b's terminator through fn.
func retarget(b *wir.BasicBlock, fn func(wir.Block) wir.Block) {
	if len(b.Instrs) == 0 {
		return
	}
	last := len(b.Instrs) - 1
	switch t := b.Instrs[last].(type) {
	case wir.Ibr:
		b.Instrs[last] = wir.Ibr{Target: fn(t.Target)}
	case wir.Icondbr:
		b.Instrs[last] = wir.Icondbr{Cond: t.Cond, Then: fn(t.Then), Else: fn(t.Else)}
	}
}
