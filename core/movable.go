package core

import "context"

// Transferable is anything whose backing storage can be handed off rather
// than copied — the Go analogue of a JS ArrayBuffer. Detach must return
// the buffer's bytes and leave the receiver logically empty (len 0).
type Transferable interface {
	Detach() []byte
}

// Movable tags a Transferable so the dispatch path routes its backing
// buffer through the transfer list instead of cloning it. See
// spec.md §8's move(x).transferable round-trip property.
type Movable struct {
	transferable Transferable
	moved        []byte
	detached     bool
}

// Move wraps v for zero-copy transfer. A value that does not implement
// Transferable is rejected at compile time; a nil v panics synchronously.
func Move(v Transferable) *Movable {
	if v == nil {
		panic("core: Move called with a nil Transferable")
	}
	return &Movable{transferable: v}
}

// Transferable returns the wrapped value.
func (m *Movable) Transferable() Transferable {
	if m == nil {
		return nil
	}
	return m.transferable
}

// detach hands off the buffer's bytes for placement on the worker side of
// the envelope, leaving the controller-side value empty. The detached
// bytes are retained on m itself so the module invocation that receives
// the same *Movable (it travels in the envelope's TransferList) can still
// read the moved payload via MovedBytes — the Go analogue of the worker
// side receiving a live ArrayBuffer view over the handed-off memory.
func (m *Movable) detach() []byte {
	m.moved = m.transferable.Detach()
	m.detached = true
	return m.moved
}

// alreadyDetached reports whether this Movable has already moved its
// buffer on a prior dispatch — reusing it in a later TransferList is
// rejected with invalid_transfer rather than detaching a second time.
func (m *Movable) alreadyDetached() bool {
	if m == nil {
		return false
	}
	return m.detached
}

// MovedBytes returns the bytes this Movable moved on dispatch, or nil if
// it has not been dispatched yet.
func (m *Movable) MovedBytes() []byte {
	if m == nil {
		return nil
	}
	return m.moved
}

type transferListContextKey struct{}

// ContextWithTransferList attaches list to ctx so the module invocation
// dispatched alongside it can read back the moved handles via
// TransferListFromContext, rather than only the controller side observing
// the detach.
func ContextWithTransferList(ctx context.Context, list []*Movable) context.Context {
	if len(list) == 0 {
		return ctx
	}
	return context.WithValue(ctx, transferListContextKey{}, list)
}

// TransferListFromContext returns the transfer list the dispatching
// worker handle attached to ctx, or nil if none was attached.
func TransferListFromContext(ctx context.Context) []*Movable {
	list, _ := ctx.Value(transferListContextKey{}).([]*Movable)
	return list
}
