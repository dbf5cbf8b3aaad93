package threadmodel

import "github.com/rs/zerolog/log"

// Normalize returns the post's comments in the flat CommentItem shape.
// Comments win when present (even if empty); otherwise legacy numeric nodes are
// converted; otherwise the result is empty.
func Normalize(post Post) []CommentItem {
	if post.Comments != nil {
		return post.Comments
	}
	if post.Nodes != nil {
		items := make([]CommentItem, 0, len(post.Nodes))
		for _, n := range post.Nodes {
			items = append(items, CommentItem{
				ID:         n.ID,
				ParentID:   n.ParentID,
				Text:       n.LegacyText(),
				AuthorID:   n.AuthorID,
				AuthorName: n.AuthorName,
				CreatedAt:  n.CreatedAt,
			})
		}
		return items
	}
	return []CommentItem{}
}

// BuildForest turns a flat list into a rooted forest in a single pass.
//
// Children keep the relative input order. Items whose parent cannot be found
// are promoted to roots. When an id repeats, the first occurrence wins and the
// later items are dropped. Nodes caught in a parent cycle (including a node
// that names itself as parent) never reach a root during the pass; they are
// detached and promoted in input order so that every unique id appears exactly
// once and the forest is always finite.
func BuildForest(items []CommentItem) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(items))
	order := make([]*CommentNode, 0, len(items))
	for _, item := range items {
		if _, dup := nodes[item.ID]; dup {
			log.Debug().Str("comment_id", item.ID).Msg("Dropping duplicate comment id")
			continue
		}
		node := &CommentNode{CommentItem: item, Children: []*CommentNode{}}
		nodes[item.ID] = node
		order = append(order, node)
	}

	roots := make([]*CommentNode, 0, len(order))
	parents := make(map[*CommentNode]*CommentNode, len(order))
	for _, node := range order {
		if node.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[*node.ParentID]; ok {
			parent.Children = append(parent.Children, node)
			parents[node] = parent
			continue
		}
		roots = append(roots, node)
	}

	reached := make(map[*CommentNode]bool, len(order))
	for _, root := range roots {
		mark(root, reached)
	}
	if len(reached) == len(order) {
		return roots
	}

	for _, node := range order {
		if reached[node] {
			continue
		}
		log.Debug().Str("comment_id", node.ID).Msg("Promoting comment caught in a parent cycle")
		if parent := parents[node]; parent != nil {
			parent.Children = removeChild(parent.Children, node)
		}
		roots = append(roots, node)
		mark(node, reached)
	}
	return roots
}

func mark(node *CommentNode, reached map[*CommentNode]bool) {
	if reached[node] {
		return
	}
	reached[node] = true
	for _, child := range node.Children {
		mark(child, reached)
	}
}

func removeChild(children []*CommentNode, target *CommentNode) []*CommentNode {
	out := children[:0]
	for _, c := range children {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits every node depth-first, parents before children. Returning false
// from fn stops the walk.
func Walk(forest []*CommentNode, fn func(node *CommentNode, depth int) bool) {
	var visit func(nodes []*CommentNode, depth int) bool
	visit = func(nodes []*CommentNode, depth int) bool {
		for _, n := range nodes {
			if !fn(n, depth) {
				return false
			}
			if !visit(n.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(forest, 0)
}

// Count returns the number of nodes in the forest.
func Count(forest []*CommentNode) int {
	total := 0
	Walk(forest, func(*CommentNode, int) bool {
		total++
		return true
	})
	return total
}

// Find returns the node with the given id, or nil.
func Find(forest []*CommentNode, id string) *CommentNode {
	var found *CommentNode
	Walk(forest, func(n *CommentNode, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}
