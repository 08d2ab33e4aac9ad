package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/state"
)

var (
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipIntegration    bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, checkpoint/mongo tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else {
		host, err := testMongoContainer.Host(ctx)
		if err != nil {
			fmt.Printf("Failed to get container host: %v\n", err)
			skipIntegration = true
		} else {
			port, err := testMongoContainer.MappedPort(ctx, "27017")
			if err != nil {
				fmt.Printf("Failed to get container port: %v\n", err)
				skipIntegration = true
			} else {
				uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
				testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
				if err != nil {
					fmt.Printf("Failed to connect to mongo: %v\n", err)
					skipIntegration = true
				} else if err := testMongoClient.Ping(ctx, nil); err != nil {
					fmt.Printf("Failed to ping mongo: %v\n", err)
					skipIntegration = true
				}
			}
		}
	}

	code := m.Run()

	if testMongoClient != nil {
		_ = testMongoClient.Disconnect(ctx)
	}
	if testMongoContainer != nil {
		_ = testMongoContainer.Terminate(ctx)
	}
	os.Exit(code)
}

// newTestStore returns a fresh Store backed by a collection named after the
// running test, for isolation. Skips the test if Docker/MongoDB is not
// available.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping checkpoint/mongo test")
	}
	store, err := New(Options{Client: testMongoClient, Database: "chatagent_test", Collection: t.Name()})
	require.NoError(t, err)
	_ = store.coll.Drop(context.Background())
	return store
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := state.New("sess-1", "Add a slack notifier to the onboarding flow", "capability-first")
	sess.MergeFacts("target", map[string]any{"chatflow_id": "cf-123"})
	sess.AppendMessage(state.RoleUser, "add a slack notifier")
	snap := sess.Snapshot(time.Now().UTC())

	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, snap.Requirement, loaded.Requirement)
	assert.Equal(t, snap.Messages[0].Content, loaded.Messages[0].Content)
	assert.Equal(t, "cf-123", loaded.Facts["target"]["chatflow_id"])
}

func TestStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStoreSaveOverwritesPriorCheckpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := state.New("sess-2", "req", "capability-first")
	require.NoError(t, store.Save(ctx, sess.Snapshot(time.Now().UTC())))

	sess.AdvanceIteration()
	sess.MarkDone()
	require.NoError(t, store.Save(ctx, sess.Snapshot(time.Now().UTC())))

	loaded, err := store.Load(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Iteration)
	assert.True(t, loaded.Done)
}

func TestStoreDeleteRemovesCheckpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := state.New("sess-3", "req", "capability-first")
	require.NoError(t, store.Save(ctx, sess.Snapshot(time.Now().UTC())))
	require.NoError(t, store.Delete(ctx, "sess-3"))

	_, err := store.Load(ctx, "sess-3")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}
