// Branch tunneling.
// Blocks whose only instruction is an unconditional branch are bypassed:
// "br L1" where L1 is "br L2" becomes "br L2".
package linearize

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

// Tunnel shortcuts chains of empty forwarding blocks in f. The forwarding
// blocks themselves are left in place; Linearize drops them once nothing
// branches to them.
func Tunnel(f *wir.Function) {
	if len(f.Blocks) == 0 {
		return
	}
	dest := finalDestinations(forwardingBlocks(f))
	for _, b := range f.Blocks {
		retarget(b, func(t wir.Block) wir.Block {
			if d, ok := dest[t]; ok {
				return d
			}
			return t
		})
	}
	if d, ok := dest[f.Entry]; ok {
		f.Entry = d
	}
}

// forwardingBlocks maps each block that only branches on to its target.
func forwardingBlocks(f *wir.Function) map[wir.Block]wir.Block {
	fwd := make(map[wir.Block]wir.Block)
	for i, b := range f.Blocks {
		if len(b.Instrs) != 1 {
			continue
		}
		if br, ok := b.Instrs[0].(wir.Ibr); ok {
			fwd[wir.Block(i)] = br.Target
		}
	}
	return fwd
}

// finalDestinations follows every forwarding block to the first block
// that does real work.
func finalDestinations(fwd map[wir.Block]wir.Block) map[wir.Block]wir.Block {
	dest := make(map[wir.Block]wir.Block, len(fwd))
	for b := range fwd {
		dest[b] = destination(b, fwd)
	}
	return dest
}

// destination walks forwarders from b. A ring of forwarders (an empty
// infinite loop) ends at the block where the walk comes back around.
func destination(b wir.Block, fwd map[wir.Block]wir.Block) wir.Block {
	seen := make(map[wir.Block]bool)
	for {
		if seen[b] {
			return b
		}
		seen[b] = true
		next, ok := fwd[b]
		if !ok {
			return b
		}
		b = next
	}
}
