package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/recon"
)

type reconRepository struct {
	batches *batchTable
	staged  *stagedTable
}

var (
	_ recon.BatchRepository         = (*reconRepository)(nil) // interface compliance check
	_ recon.StagedPaymentRepository = (*reconRepository)(nil)
)

func NewReconRepository(db *DB) *reconRepository {
	return &reconRepository{batches: db.batch, staged: db.staged}
}

func (repo *reconRepository) CreateBatch(_ context.Context, b recon.Batch) (recon.Batch, error) {
	repo.batches.Lock()
	defer repo.batches.Unlock()
	repo.batches.table[b.ID] = &b
	return b, nil
}

func (repo *reconRepository) GetBatchByID(_ context.Context, id string) (recon.Batch, error) {
	repo.batches.RLock()
	defer repo.batches.RUnlock()

	if b, ok := repo.batches.table[id]; ok {
		return *b, nil
	}
	return recon.Batch{}, recon.ErrBatchNotFound
}

func (repo *reconRepository) QueryAllBatches(_ context.Context) ([]recon.Batch, error) {
	repo.batches.RLock()
	defer repo.batches.RUnlock()

	batches := make([]recon.Batch, 0, len(repo.batches.table))
	for _, b := range repo.batches.table {
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

func (repo *reconRepository) UpdateBatch(_ context.Context, b recon.Batch) (recon.Batch, error) {
	repo.batches.Lock()
	defer repo.batches.Unlock()

	if _, ok := repo.batches.table[b.ID]; !ok {
		return recon.Batch{}, recon.ErrBatchNotFound
	}
	repo.batches.table[b.ID] = &b
	return b, nil
}

func (repo *reconRepository) DeleteBatches(_ context.Context, before time.Time, ids ...string) (int, error) {
	repo.batches.Lock()
	defer repo.batches.Unlock()

	var doomed []string
	switch {
	case !before.IsZero():
		for id, b := range repo.batches.table {
			if b.CreatedAt.Before(before.UTC()) {
				doomed = append(doomed, id)
			}
		}
	case len(ids) > 0:
		for _, id := range ids {
			if _, ok := repo.batches.table[id]; ok {
				doomed = append(doomed, id)
			}
		}
	default:
		return 0, nil
	}

	for _, id := range doomed {
		delete(repo.batches.table, id)
	}

	// staged rows cascade with their batch
	repo.staged.Lock()
	defer repo.staged.Unlock()
	for spID, sp := range repo.staged.table {
		for _, id := range doomed {
			if sp.BatchID == id {
				delete(repo.staged.table, spID)
				break
			}
		}
	}
	return len(doomed), nil
}

func (repo *reconRepository) CreateStagedPayments(_ context.Context, rows []recon.StagedPayment) ([]recon.StagedPayment, error) {
	repo.staged.Lock()
	defer repo.staged.Unlock()

	for i := range rows {
		sp := rows[i]
		repo.staged.table[sp.ID] = &sp
	}
	return rows, nil
}

func (repo *reconRepository) GetStagedPaymentByID(_ context.Context, id string) (recon.StagedPayment, error) {
	repo.staged.RLock()
	defer repo.staged.RUnlock()

	if sp, ok := repo.staged.table[id]; ok {
		return *sp, nil
	}
	return recon.StagedPayment{}, recon.ErrRowNotFound
}

func (repo *reconRepository) FilterStagedPayments(_ context.Context, filter recon.QueryFilter, _ ...core.DBOrdering) ([]recon.StagedPayment, error) {
	repo.staged.RLock()
	defer repo.staged.RUnlock()

	var rows []recon.StagedPayment
	for _, sp := range repo.staged.table {
		if filter.BatchID != "" && sp.BatchID != filter.BatchID {
			continue
		}
		if filter.Bucket != "" && sp.Bucket != filter.Bucket {
			continue
		}
		if filter.Resolution != "" && sp.Resolution != filter.Resolution {
			continue
		}
		rows = append(rows, *sp)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Line < rows[j].Line })
	return rows, nil
}

func (repo *reconRepository) UpdateStagedPayment(_ context.Context, sp recon.StagedPayment) (recon.StagedPayment, error) {
	repo.staged.Lock()
	defer repo.staged.Unlock()

	if _, ok := repo.staged.table[sp.ID]; !ok {
		return recon.StagedPayment{}, recon.ErrRowNotFound
	}
	repo.staged.table[sp.ID] = &sp
	return sp, nil
}
