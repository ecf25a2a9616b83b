package binxml

import "github.com/pkg/errors"

// Node is an element of a template body with its content in stream order.
// Items holds child *Node values mixed with content elements.
type Node struct {
	Start *ElementStart
	Items []Element
}

// NodeTree nests a flat token list. It returns the node built and the index
// of the token that closed it.
func NodeTree(es []Element, index int) (Node, int) {
	var n Node
	for index < len(es) {
		switch e := es[index].(type) {
		case *ElementStart:
			var nn Node
			nn, index = NodeTree(es, index+1)
			nn.Start = e
			n.Items = append(n.Items, &nn)
		case *EndElementTag, *CloseEmptyElementTag:
			return n, index
		case *CloseStartElementTag:
		default:
			n.Items = append(n.Items, e)
		}
		index++
	}
	return n, index
}

// rootNode nests a whole fragment and rejects unbalanced end tokens.
func rootNode(es []Element) (Node, error) {
	node, index := NodeTree(es, 0)
	if index < len(es) {
		return node, errors.Wrapf(ErrUnexpectedToken, "unbalanced end of element at token %d", index)
	}
	return node, nil
}
