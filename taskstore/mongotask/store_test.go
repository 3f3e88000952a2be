package mongotask_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/a2a-runtime/taskstore/mongotask"
	"goa.design/a2a-runtime/types"
)

var (
	testMongoClient    *mongo.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

func setupMongoDB() {
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
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongo.Connect(options.Client().ApplyURI(uri)) // v2: Connect no longer takes a context
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
	}
}

func getStore(t *testing.T) *mongotask.Store {
	t.Helper()
	if testMongoClient == nil && !skipMongoTests {
		setupMongoDB()
	}
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	collection := testMongoClient.Database("a2a_test").Collection(t.Name())
	require.NoError(t, collection.Drop(context.Background()))
	return mongotask.New(collection)
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store := getStore(t)
	ctx := context.Background()

	task := &types.Task{
		ID:        "T-mongo-1",
		ContextID: "ctx-1",
		Status:    types.TaskStatus{State: types.TaskStateCompleted},
		Artifacts: []*types.Artifact{{ArtifactID: "a1", Parts: []types.Part{types.NewTextPart("result")}}},
	}
	require.NoError(t, store.Put(ctx, task))

	got, ok, err := store.Get(ctx, "T-mongo-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, task.Status.State, got.Status.State)
	require.Len(t, got.Artifacts, 1)
}

func TestStoreGetMissingReturnsFalse(t *testing.T) {
	store := getStore(t)
	_, ok, err := store.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreDeleteRemovesDocument(t *testing.T) {
	store := getStore(t)
	ctx := context.Background()
	task := &types.Task{ID: "T-mongo-2", Status: types.TaskStatus{State: types.TaskStateWorking}}
	require.NoError(t, store.Put(ctx, task))
	require.NoError(t, store.Delete(ctx, task.ID))

	_, ok, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePutReplacesExistingDocument(t *testing.T) {
	store := getStore(t)
	ctx := context.Background()
	task := &types.Task{ID: "T-mongo-3", Status: types.TaskStatus{State: types.TaskStateWorking}}
	require.NoError(t, store.Put(ctx, task))

	task.Status.State = types.TaskStateCompleted
	require.NoError(t, store.Put(ctx, task))

	got, ok, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.TaskStateCompleted, got.Status.State)
}
