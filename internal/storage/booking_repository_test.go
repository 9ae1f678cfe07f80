package storage

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubTx answers QueryRow from a scripted list of rows and Exec with a fixed
// command tag. Embedding pgx.Tx leaves the rest of the interface unimplemented;
// LockIdempotencyKey only touches these two methods.
type stubTx struct {
	pgx.Tx
	execTag pgconn.CommandTag
	rows    []stubRow
}

type stubRow struct {
	err error
	rec IdempotencyRecord
}

func (tx *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.execTag, nil
}

func (tx *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := tx.rows[0]
	tx.rows = tx.rows[1:]
	return row
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.rec.DoctorID
	*dest[1].(*string) = r.rec.IdempotencyKey
	*dest[2].(*string) = r.rec.AppointmentID
	*dest[3].(*int) = r.rec.StatusCode
	*dest[4].(*string) = r.rec.ResponsePayload
	return nil
}

func TestLockIdempotencyKey_FreshClaim(t *testing.T) {
	tx := &stubTx{
		execTag: pgconn.NewCommandTag("INSERT 0 1"),
		rows: []stubRow{
			{err: pgx.ErrNoRows},
			{rec: IdempotencyRecord{DoctorID: "doc-1", IdempotencyKey: "key-1"}},
		},
	}
	repo := &BookingRepository{}

	rec, existed, err := repo.LockIdempotencyKey(context.Background(), tx, "doc-1", "key-1")
	if err != nil {
		t.Fatalf("LockIdempotencyKey failed: %v", err)
	}
	if existed {
		t.Fatalf("fresh insert reported as existing")
	}
	if rec.StatusCode != 0 {
		t.Fatalf("expected unfinalized record, got status %d", rec.StatusCode)
	}
}

func TestLockIdempotencyKey_ConcurrentClaimReadsAsExisting(t *testing.T) {
	// The second request loses the insert race: its select misses, the
	// insert is a no-op, and the winner's committed row shows up on the
	// follow-up select. It must be reported as existing, not fresh.
	stored := IdempotencyRecord{
		DoctorID:        "doc-1",
		IdempotencyKey:  "key-1",
		AppointmentID:   "appt-9",
		StatusCode:      201,
		ResponsePayload: `{"appointment_id":"appt-9","serial":3}`,
	}
	tx := &stubTx{
		execTag: pgconn.NewCommandTag("INSERT 0 0"),
		rows: []stubRow{
			{err: pgx.ErrNoRows},
			{rec: stored},
		},
	}
	repo := &BookingRepository{}

	rec, existed, err := repo.LockIdempotencyKey(context.Background(), tx, "doc-1", "key-1")
	if err != nil {
		t.Fatalf("LockIdempotencyKey failed: %v", err)
	}
	if !existed {
		t.Fatalf("concurrently claimed key reported as fresh")
	}
	if rec.ResponsePayload != stored.ResponsePayload {
		t.Fatalf("stored response changed: %q", rec.ResponsePayload)
	}
}

func TestLockIdempotencyKey_ExistingKeyReturnsStoredResponse(t *testing.T) {
	stored := IdempotencyRecord{
		DoctorID:        "doc-1",
		IdempotencyKey:  "key-1",
		AppointmentID:   "appt-4",
		StatusCode:      201,
		ResponsePayload: `{"appointment_id":"appt-4","serial":1,"date":"2024-09-06"}`,
	}
	tx := &stubTx{rows: []stubRow{{rec: stored}}}
	repo := &BookingRepository{}

	rec, existed, err := repo.LockIdempotencyKey(context.Background(), tx, "doc-1", "key-1")
	if err != nil {
		t.Fatalf("LockIdempotencyKey failed: %v", err)
	}
	if !existed {
		t.Fatalf("stored key reported as fresh")
	}
	if rec != stored {
		t.Fatalf("record round-trip mismatch: %+v", rec)
	}
}
