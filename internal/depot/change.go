package depot

import (
	"context"
	"fmt"

	"github.com/polytope-vcs/polytope/internal/ids"
	"github.com/polytope-vcs/polytope/internal/kv"
)

func (d *Depot) CreateChange(ctx context.Context, name, historyID, basis string) (*Change, error) {
	const op = "CreateChange"
	c := &Change{
		ID:        ids.New(ids.KindChange),
		Name:      name,
		HistoryID: historyID,
		Basis:     basis,
		Status:    ChangeOpen,
	}
	if err := d.putChange(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Depot) GetChange(ctx context.Context, id string) (*Change, error) {
	const op = "GetChange"
	data, found, err := d.store.Get(ctx, kv.ColumnChanges, id)
	if err != nil {
		return nil, newError(Internal, op, "read change", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("change %q", id), nil)
	}
	var c Change
	if err := decode(op, data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *Depot) putChange(ctx context.Context, c *Change) error {
	const op = "putChange"
	data, err := encode(op, c)
	if err != nil {
		return err
	}
	if err := d.store.Put(ctx, kv.ColumnChanges, c.ID, data); err != nil {
		return newError(Internal, op, "write change", err)
	}
	return nil
}

// AbandonChange transitions an Open change to Abandoned.
func (d *Depot) AbandonChange(ctx context.Context, changeID string) error {
	const op = "AbandonChange"
	c, err := d.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if c.Status != ChangeOpen {
		return newError(InvalidParameter, op, fmt.Sprintf("change %q is not open", changeID), nil)
	}
	c.Status = ChangeAbandoned
	return d.putChange(ctx, c)
}

// CloseChange transitions an Open change to Closed, on deliver.
func (d *Depot) CloseChange(ctx context.Context, changeID string) error {
	const op = "CloseChange"
	c, err := d.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if c.Status != ChangeOpen {
		return newError(InvalidParameter, op, fmt.Sprintf("change %q is not open", changeID), nil)
	}
	c.Status = ChangeClosed
	return d.putChange(ctx, c)
}
