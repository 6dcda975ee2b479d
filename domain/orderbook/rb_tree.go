package orderbook

import "github.com/shopspring/decimal"

type color uint8

const (
	red color = iota
	black
)

type node struct {
	level  Level
	color  color
	left   *node
	right  *node
	parent *node
}

// rbTree is a red-black tree of levels keyed by price, ascending.
type rbTree struct {
	root *node
	nil  *node // sentinel (black)
	size int
}

func newRBTree() *rbTree {
	sentinel := &node{color: black}
	return &rbTree{root: sentinel, nil: sentinel}
}

func (t *rbTree) Len() int { return t.size }

func (t *rbTree) Get(price decimal.Decimal) (Level, bool) {
	n := t.search(price)
	if n == t.nil {
		return Level{}, false
	}
	return n.level, true
}

// Put inserts lvl or replaces the level at the same price.
// It returns the replaced level, if any.
func (t *rbTree) Put(lvl Level) (Level, bool) {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		switch c := lvl.Price.Cmp(x.level.Price); {
		case c < 0:
			x = x.left
		case c > 0:
			x = x.right
		default:
			old := x.level
			x.level = lvl
			return old, true
		}
	}

	z := &node{level: lvl, color: red, left: t.nil, right: t.nil, parent: y}
	if y == t.nil {
		t.root = z
	} else if lvl.Price.LessThan(y.level.Price) {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return Level{}, false
}

// Delete removes the level at price and returns it.
func (t *rbTree) Delete(price decimal.Decimal) (Level, bool) {
	z := t.search(price)
	if z == t.nil {
		return Level{}, false
	}
	lvl := z.level
	t.deleteNode(z)
	t.size--
	return lvl, true
}

func (t *rbTree) Min() (Level, bool) {
	n := t.minNode(t.root)
	if n == t.nil {
		return Level{}, false
	}
	return n.level, true
}

func (t *rbTree) Max() (Level, bool) {
	n := t.maxNode(t.root)
	if n == t.nil {
		return Level{}, false
	}
	return n.level, true
}

func (t *rbTree) Ascend(fn func(Level) bool) {
	for n := t.minNode(t.root); n != t.nil; n = t.next(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *rbTree) Descend(fn func(Level) bool) {
	for n := t.maxNode(t.root); n != t.nil; n = t.prev(n) {
		if !fn(n.level) {
			return
		}
	}
}

/******************** Internal helpers ********************/

func (t *rbTree) search(price decimal.Decimal) *node {
	n := t.root
	for n != t.nil {
		switch c := price.Cmp(n.level.Price); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n
		}
	}
	return t.nil
}

func (t *rbTree) minNode(n *node) *node {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *rbTree) maxNode(n *node) *node {
	if n == t.nil {
		return t.nil
	}
	for n.right != t.nil {
		n = n.right
	}
	return n
}

func (t *rbTree) next(n *node) *node {
	if n.right != t.nil {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) prev(n *node) *node {
	if n.left != t.nil {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) leftRotate(x *node) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rightRotate(y *node) {
	x := y.left
	y.left = x.right
	if x.right != t.nil {
		x.right.parent = y
	}
	x.parent = y.parent
	if y.parent == t.nil {
		t.root = x
	} else if y == y.parent.right {
		y.parent.right = x
	} else {
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *rbTree) insertFixup(z *node) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.leftRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rightRotate(z.parent.parent)
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rightRotate(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.leftRotate(z.parent.parent)
		}
	}
	t.root.color = black
}

func (t *rbTree) transplant(u, v *node) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *rbTree) deleteNode(z *node) {
	y := z
	yColor := y.color
	var x *node

	switch {
	case z.left == t.nil:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nil:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minNode(z.right)
		yColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yColor == black {
		t.deleteFixup(x)
	}
	// the sentinel's parent is scratch space for deleteFixup
	t.nil.parent = t.nil
}

func (t *rbTree) deleteFixup(x *node) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.right.color == black {
				w.left.color = black
				w.color = red
				t.rightRotate(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.leftRotate(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.left.color == black {
				w.right.color = black
				w.color = red
				t.leftRotate(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rightRotate(x.parent)
			x = t.root
		}
	}
	x.color = black
}
