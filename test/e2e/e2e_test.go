// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-system/internal/common/config"
	"notification-system/internal/common/database"
	"notification-system/internal/common/logger"
	"notification-system/internal/dispatch"
	"notification-system/internal/models"
	"notification-system/internal/registry"
	"notification-system/internal/store"
)

var zapLog *zap.Logger

func TestMain(m *testing.M) {
	zapLog, _ = zap.NewProduction()
	code := m.Run()
	os.Exit(code)
}

// TestFullE2E exercises the registry, enqueue, and queue claim path against
// real backing services. Set RUN_E2E=true with Postgres and Redis running
// locally; otherwise the test is skipped.
func TestFullE2E(t *testing.T) {
	if os.Getenv("RUN_E2E") != "true" {
		t.Skip("RUN_E2E not set; skipping end-to-end test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	t.Log("🚀 Starting E2E test with real services...")

	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx), "❌ PostgreSQL ping failed")
	t.Log("✅ PostgreSQL connected")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis connection failed")
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx), "❌ Redis ping failed")
	t.Log("✅ Redis connected")

	log := logger.NewZapAdapter(zapLog)
	db := pg.DB

	masterStore := store.NewMasterStore(db)
	notificationStore := store.NewNotificationStore(db)
	queueStore := store.NewQueueStore(db)
	registrySvc := registry.NewService(masterStore, rdb.GetClient(), log)
	dispatchSvc := dispatch.NewService(db, notificationStore, queueStore, registrySvc, log)

	// --- 1. Registry: master, field, and active layout ---
	masterName := fmt.Sprintf("e2e-master-%d", time.Now().UnixNano())
	master, err := registrySvc.CreateMaster(ctx, masterName, nil, nil, true)
	require.NoError(t, err)
	t.Logf("✅ Created master %d", master.ID)

	field, err := registrySvc.CreateField(ctx, master.ID, "applicant_name")
	require.NoError(t, err)

	_, err = registrySvc.CreateMeta(ctx, master.ID, field.ID, 1, true)
	require.NoError(t, err)

	layout, err := registrySvc.ActiveLayout(ctx, master.ID)
	require.NoError(t, err)
	require.Len(t, layout, 1)
	assert.Equal(t, field.ID, layout[0].FieldID)
	t.Log("✅ Active layout resolved")

	// --- 2. Enqueue a WhatsApp notification through the registry layout ---
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, phone) VALUES (999001, 'e2e@example.com', '+910000000001')
		 ON CONFLICT (id) DO NOTHING`)
	require.NoError(t, err)

	event := &dispatch.Event{
		UserID:               999001,
		NotificationMasterID: &master.ID,
		Variant:              models.VariantWhatsApp,
		Type:                 "e2e",
		Message:              "end to end check",
		NotificationEvent:    &dispatch.EventBody{BodyValues: []string{"Asha"}},
	}
	notificationID, err := dispatchSvc.Enqueue(ctx, event)
	require.NoError(t, err)
	t.Logf("✅ Enqueued notification %d", notificationID)

	n, err := dispatchSvc.GetNotification(ctx, notificationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, n.Status)

	contents, err := notificationStore.Contents(ctx, notificationID)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "Asha", contents[0].Content)

	// --- 3. Claim from the queue the way a channel worker does ---
	items, err := queueStore.Claim(ctx, models.QueueWhatsApp, "e2e-test", time.Minute, 100)
	require.NoError(t, err)

	var claimed *models.QueueItem
	for i := range items {
		if items[i].NotificationID == notificationID {
			claimed = &items[i]
			break
		}
	}
	require.NotNil(t, claimed, "enqueued row should be claimable")
	t.Logf("✅ Claimed queue row %d", claimed.ID)

	// Release everything else so parallel workers are not starved.
	for i := range items {
		if items[i].ID != claimed.ID {
			_ = queueStore.Release(ctx, items[i].ID, "e2e release")
		}
	}

	// --- 4. Complete the delivery transactionally ---
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, notificationStore.MarkSentTx(ctx, tx, notificationID))
	require.NoError(t, queueStore.RetireTx(ctx, tx, claimed.ID, ""))
	require.NoError(t, tx.Commit())

	final, err := dispatchSvc.GetNotification(ctx, notificationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, final.Status)

	t.Log("✅ ALL STEPS PASSED — enqueue to delivery verified")
}
