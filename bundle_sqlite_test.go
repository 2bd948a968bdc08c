package quest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// TestSQLiteBundle_DurableAcrossRestart demonstrates that a quest started in
// one process survives a simulated restart, assuming definitions are
// re-registered and RecoverActive is called on startup.
func TestSQLiteBundle_DurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "quest_bundle.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	// --- Phase 1: start a quest, advance one step, then "crash".

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	sink1 := &captureSink{}
	bundle1, err := NewSQLiteBundle(db1, sink1, SupervisorOptions{})
	require.NoError(t, err)
	require.NoError(t, bundle1.Supervisor.RegisterDefinition(orderDefinition()))

	inst, err := bundle1.Supervisor.Deliver(ctx, orderEvent("e1", "OrderPlaced", "O1"))
	require.NoError(t, err)
	require.Equal(t, StatusRunning, inst.Status)

	_, err = bundle1.Supervisor.Deliver(ctx, orderEvent("e2", "PaymentProcessed", "O1"))
	require.NoError(t, err)

	require.NoError(t, db1.Close())

	// --- Phase 2: new process over the same database.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	sink2 := &captureSink{}
	bundle2, err := NewSQLiteBundle(db2, sink2, SupervisorOptions{})
	require.NoError(t, err)
	require.NoError(t, bundle2.Supervisor.RegisterDefinition(orderDefinition()))

	n, err := bundle2.Supervisor.RecoverActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n, "the running instance should be recovered")

	recovered, err := bundle2.Supervisor.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, recovered.Status)
	require.Equal(t, 1, recovered.CurrentStep)

	// The recovered instance still reacts to its awaited events.
	after, err := bundle2.Supervisor.Deliver(ctx, orderEvent("e3", "InventoryUpdated", "O1"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, after.Status)

	// The quest log carries the full history across both processes.
	history, err := bundle2.Supervisor.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, StatusCompleted, history[2].NewStatus)
}

func TestSQLiteBundle_PumpsDeliverFromSource(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "quest_pump.db"))
	require.NoError(t, err)
	defer db.Close()

	sink := &captureSink{}
	bundle, err := NewSQLiteBundle(db, sink, SupervisorOptions{})
	require.NoError(t, err)
	require.NoError(t, bundle.Supervisor.RegisterDefinition(orderDefinition()))

	require.NoError(t, bundle.StartPumps(ctx, 2))
	defer bundle.Stop()

	require.NoError(t, bundle.Publish(ctx, orderEvent("e1", "OrderPlaced", "O9")))
	require.NoError(t, bundle.Publish(ctx, orderEvent("e2", "PaymentProcessed", "O9")))
	require.NoError(t, bundle.Publish(ctx, orderEvent("e3", "InventoryUpdated", "O9")))

	require.Eventually(t, func() bool {
		done, err := bundle.Supervisor.ListInstances(ctx, InstanceListOptions{Status: StatusCompleted})
		return err == nil && len(done) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
