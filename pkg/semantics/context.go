package semantics

import (
	"context"

	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
	"github.com/Sumatoshi-tech/parsegraph/pkg/revision"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
	"github.com/Sumatoshi-tech/parsegraph/pkg/tasks"
)

// Context is handed to a ComputeFunc for the duration of one
// recomputation. Every Read* call both returns the current value and
// records the dependency, so that when compute returns, the validator
// has captured exactly the dependency set this run actually exercised.
type Context struct {
	ctx    context.Context //nolint:containedctx // threaded through a single synchronous compute call, not stored beyond it.
	db     *Database
	doc    ident.Id
	node   syntax.NodeRef
	r      revision.Number
	handle *tasks.Handle

	docs     DocSource
	visiting map[AttrRef]struct{}

	deps Deps
}

// NodeRef returns the NodeRef of the syntax tree node that owns the
// attribute being computed — §6's `node_ref()`, which in particular lets
// a compute function recover its own document's Id (node_ref.Doc).
func (c *Context) NodeRef() syntax.NodeRef { return c.node }

// ContainsDoc reports whether the analyzer currently holds a document
// with id. The attribute is recomputed if this value later changes from
// true to false (it subscribes to that document's removal event).
func (c *Context) ContainsDoc(id ident.Id) bool {
	if c.docs == nil {
		return false
	}

	_, ok := c.docs(id)
	if ok && id != c.node.Doc {
		c.subscribeDocRemoved(id)
	}

	return ok
}

// ReadDoc returns a read-only view of the document named by id, or
// ErrMissingDocument if no such document is open. The attribute is
// recomputed if that document is later removed.
func (c *Context) ReadDoc(id ident.Id) (DocView, error) {
	if c.docs == nil {
		return nil, ErrMissingDocument
	}

	view, ok := c.docs(id)
	if !ok {
		return nil, ErrMissingDocument
	}

	if id != c.node.Doc {
		c.subscribeDocRemoved(id)
	}

	return view, nil
}

func (c *Context) subscribeDocRemoved(id ident.Id) {
	c.deps.Events = append(c.deps.Events, EventKey{Doc: id, Event: EventDocRemoved})
}

// Proceed returns ErrInterrupted if the task driving this read has been
// cancelled (its handle triggered, or its context done), and nil
// otherwise. Compute functions performing heavy work should call this
// periodically inside hot loops rather than relying solely on the
// validator's own polling between dependency checks.
func (c *Context) Proceed() error {
	if c.handle != nil && c.handle.Triggered() {
		return ErrInterrupted
	}

	select {
	case <-c.ctx.Done():
		return ErrInterrupted
	default:
		return nil
	}
}

// ReadAttr resolves dep at the context's revision (recursively
// validating it first if necessary) and records it as a dependency.
func (c *Context) ReadAttr(dep AttrRef) (any, error) {
	v, err := c.db.resolve(c.ctx, c.visiting, dep, c.r, c.docs, c.handle)
	if err != nil {
		return nil, err
	}

	c.deps.Attrs = append(c.deps.Attrs, dep)

	return v, nil
}

// ReadSlot returns slot's current value and records it as a dependency.
func (c *Context) ReadSlot(dep SlotRef) (any, error) {
	v, err := c.db.readSlot(c.ctx, dep)
	if err != nil {
		return nil, err
	}

	c.deps.Slots = append(c.deps.Slots, dep)

	return v, nil
}

// ReadClass returns the current membership of class within the document
// named by doc — which need not be the attribute's own document, per
// §6's `read_class(id, class)` — and records the (doc, class) pair as a
// dependency.
func (c *Context) ReadClass(doc ident.Id, class string) []syntax.NodeRef {
	c.deps.Classes = append(c.deps.Classes, ClassKey{Doc: doc, Class: class})

	if c.docs == nil {
		return nil
	}

	view, ok := c.docs(doc)
	if !ok {
		return nil
	}

	return view.ClassMembers(class)
}

// ReadEvent returns the revision at which (doc, event) last fired and
// records it as a dependency.
func (c *Context) ReadEvent(doc ident.Id, event Event) revision.Number {
	c.deps.Events = append(c.deps.Events, EventKey{Doc: doc, Event: event})

	return c.db.EventRevision(doc, event)
}
