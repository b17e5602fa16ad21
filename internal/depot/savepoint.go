package depot

import (
	"context"
	"fmt"

	"github.com/polytope-vcs/polytope/internal/ids"
	"github.com/polytope-vcs/polytope/internal/kv"
)

// CreateSavePoint records an immutable checkpoint and appends it to
// its change's SavePoints list. basis chains to the change's previous
// save point, or to the history step the change branched from if this
// is the change's first (spec.md §4.6).
func (d *Depot) CreateSavePoint(ctx context.Context, changeID, description string, basis SavePointBasis, baselineVersion string, modifiedArtifacts []string, timestamp int64) (*SavePoint, error) {
	const op = "CreateSavePoint"
	sp := &SavePoint{
		ID:                ids.New(ids.KindSavePoint),
		ChangeID:          changeID,
		Timestamp:         timestamp,
		Description:       description,
		Basis:             basis,
		BaselineVersion:   baselineVersion,
		ModifiedArtifacts: modifiedArtifacts,
	}
	data, err := encode(op, sp)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, kv.ColumnSavePoints, sp.ID, data); err != nil {
		return nil, newError(Internal, op, "write save point", err)
	}

	change, err := d.GetChange(ctx, changeID)
	if err != nil {
		return nil, err
	}
	change.SavePoints = append(change.SavePoints, sp.ID)
	if err := d.putChange(ctx, change); err != nil {
		return nil, err
	}

	return sp, nil
}

func (d *Depot) GetSavePoint(ctx context.Context, id string) (*SavePoint, error) {
	const op = "GetSavePoint"
	data, found, err := d.store.Get(ctx, kv.ColumnSavePoints, id)
	if err != nil {
		return nil, newError(Internal, op, "read save point", err)
	}
	if !found {
		return nil, newError(NotFound, op, fmt.Sprintf("save point %q", id), nil)
	}
	var sp SavePoint
	if err := decode(op, data, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}
