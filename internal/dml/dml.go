// Package dml implements the four row-mutation operations (§4.2):
// Insert, Update, Delete, Upsert. Each follows the same shape as
// original_source's dml/ins.rs::insert — validate, acquire the
// model's change-direction latch, pin an epoch guard, mint a new
// data-delta version, mutate the index, enqueue the delta — and
// reports outcomes through the qerr sentinel taxonomy rather than ad
// hoc error strings.
package dml

import (
	"github.com/google/uuid"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/delta"
	"github.com/gridrow/dbengine/internal/engctx"
	"github.com/gridrow/dbengine/internal/model"
	"github.com/gridrow/dbengine/internal/qerr"
	"github.com/gridrow/dbengine/internal/row"
)

// ExecMeta accompanies every successful mutation. DeltaPointer is an
// opaque random UUID minted per call; it is not stored with the
// enqueued delta, so it does not link a result to the queued delta or
// to the journal batch that persists it. DeltaVersion is the
// data_delta_version the mutation was stamped with.
type ExecMeta struct {
	DeltaPointer uuid.UUID
	DeltaVersion uint64
}

// Kind discriminates a Response's payload, mirroring the Rust source's
// QueryExecMeta enum shape (Empty/Row/Rows/Error) instead of Go's more
// usual "separate return per operation," because callers above dml
// (network responders) need one uniform result type to serialize.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindRow
	KindRows
	KindError
)

// Response is the uniform result of a dml call.
type Response struct {
	Kind Kind
	Row  *row.Row
	Rows []*row.Row
	Err  error
	Meta ExecMeta
}

func errResponse(err error) Response { return Response{Kind: KindError, Err: err} }

func newDeltaPointer() uuid.UUID { return uuid.New() }

// observe records the post-mutation index-op count and delta-queue
// depth for a model, through the IndexOps counter and DeltaQueueLen
// gauge engctx.Context.Metrics carries (§B). It is a no-op when ctx or ctx.Metrics is nil, so callers that
// don't care about observability (most tests) can pass &engctx.Context{}
// or even nil.
func observe(ctx *engctx.Context, m *model.Model, op string) {
	if ctx == nil || ctx.Metrics == nil {
		return
	}
	ctx.Metrics.ObserveIndexOp(m.Name(), op)
	ctx.Metrics.ObserveDeltaQueueLen(m.Name(), m.Delta().PendingLen())
}

// Insert adds a new row. It fails with qerr.ErrDuplicate if pk already
// exists, or qerr.ErrValidation if in fails Model.PrepareInsert.
func Insert(ctx *engctx.Context, m *model.Model, in model.InsertInput) Response {
	pk, data, err := m.PrepareInsert(in)
	if err != nil {
		return errResponse(err)
	}

	release := m.Index().AcquireCD()
	defer release()

	g := m.Index().Pin()
	defer g.Unpin()

	ver := m.Delta().CreateNewDataDeltaVersion()
	r := row.New(pk, data, m.Delta().SchemaVersion(), ver)

	if !m.Index().Insert(g, pk, r) {
		return errResponse(qerr.Wrap(qerr.ErrDuplicate, "insert: primary key already exists"))
	}
	m.Delta().AppendNewDataDeltaWith(delta.KindInsert, r, ver)
	observe(ctx, m, "insert")
	return Response{Kind: KindEmpty, Meta: ExecMeta{DeltaPointer: newDeltaPointer(), DeltaVersion: ver}}
}

// Update rewrites the non-pk fields of an existing row. changes maps
// field name to new value; every key must name a declared, non-pk
// field of the correct class.
func Update(ctx *engctx.Context, m *model.Model, pkCell cell.Datacell, changes map[string]cell.Datacell) Response {
	pk, err := cell.NewFromDatacell(pkCell)
	if err != nil {
		return errResponse(qerr.Wrap(qerr.ErrValidation, "update: primary key class is not hashable"))
	}
	for name, v := range changes {
		v := v
		if verr := m.ValidateFieldUpdate(name, &v); verr != nil {
			return errResponse(verr)
		}
	}

	release := m.Index().AcquireCD()
	defer release()

	g := m.Index().Pin()
	defer g.Unpin()

	r, ok := m.Index().Get(g, pk)
	if !ok {
		return errResponse(qerr.Wrap(qerr.ErrNotFound, "update: no such primary key"))
	}
	m.ResolveRowSchema(r)

	ver := m.Delta().CreateNewDataDeltaVersion()
	next := r.Data()
	for name, v := range changes {
		next[name] = v
	}
	r.SetData(next, ver)

	m.Delta().AppendNewDataDeltaWith(delta.KindUpdate, r, ver)
	observe(ctx, m, "update")
	return Response{Kind: KindEmpty, Meta: ExecMeta{DeltaPointer: newDeltaPointer(), DeltaVersion: ver}}
}

// Delete removes a row by primary key.
func Delete(ctx *engctx.Context, m *model.Model, pkCell cell.Datacell) Response {
	pk, err := cell.NewFromDatacell(pkCell)
	if err != nil {
		return errResponse(qerr.Wrap(qerr.ErrValidation, "delete: primary key class is not hashable"))
	}

	release := m.Index().AcquireCD()
	defer release()

	g := m.Index().Pin()
	defer g.Unpin()

	ver := m.Delta().CreateNewDataDeltaVersion()
	r, ok := m.Index().DeleteReturn(g, pk)
	if !ok {
		return errResponse(qerr.Wrap(qerr.ErrNotFound, "delete: no such primary key"))
	}
	m.Delta().AppendNewDataDeltaWith(delta.KindDelete, r, ver)
	observe(ctx, m, "delete")
	return Response{Kind: KindEmpty, Meta: ExecMeta{DeltaPointer: newDeltaPointer(), DeltaVersion: ver}}
}

// Upsert inserts a fresh row, or unconditionally replaces an existing
// one with the same primary key, never failing on either branch.
func Upsert(ctx *engctx.Context, m *model.Model, in model.InsertInput) Response {
	pk, data, err := m.PrepareInsert(in)
	if err != nil {
		return errResponse(err)
	}

	release := m.Index().AcquireCD()
	defer release()

	g := m.Index().Pin()
	defer g.Unpin()

	ver := m.Delta().CreateNewDataDeltaVersion()
	r := row.New(pk, data, m.Delta().SchemaVersion(), ver)
	m.Index().Upsert(g, pk, r)
	m.Delta().AppendNewDataDeltaWith(delta.KindUpdate, r, ver)
	observe(ctx, m, "upsert")
	return Response{Kind: KindEmpty, Meta: ExecMeta{DeltaPointer: newDeltaPointer(), DeltaVersion: ver}}
}

// Get reads a single row by primary key, resolving any pending schema
// deltas onto it first.
func Get(ctx *engctx.Context, m *model.Model, pkCell cell.Datacell) Response {
	pk, err := cell.NewFromDatacell(pkCell)
	if err != nil {
		return errResponse(qerr.Wrap(qerr.ErrValidation, "get: primary key class is not hashable"))
	}
	g := m.Index().Pin()
	defer g.Unpin()

	r, ok := m.Index().Get(g, pk)
	if !ok {
		return errResponse(qerr.Wrap(qerr.ErrNotFound, "get: no such primary key"))
	}
	m.ResolveRowSchema(r)
	observe(ctx, m, "get")
	return Response{Kind: KindRow, Row: r}
}
