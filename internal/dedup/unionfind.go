package dedup

// unionFind maintains disjoint sets of memory ids with path compression.
// Sets are merged as symmetric duplicate pairs arrive; ranks are implicit
// since cluster sizes stay small.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

// find returns the representative of x, compressing the path on the way up.
func (uf *unionFind) find(x string) string {
	root, ok := uf.parent[x]
	if !ok {
		uf.parent[x] = x
		return x
	}
	if root == x {
		return x
	}
	root = uf.find(root)
	uf.parent[x] = root
	return root
}

// union merges the sets containing a and b.
func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[rb] = ra
	}
}

// groups returns every set with at least two members, keyed by representative.
func (uf *unionFind) groups() map[string][]string {
	out := make(map[string][]string)
	for member := range uf.parent {
		root := uf.find(member)
		out[root] = append(out[root], member)
	}
	for root, members := range out {
		if len(members) < 2 {
			delete(out, root)
		}
	}
	return out
}
