package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	feedmongo "github.com/tendant/simple-feed/pkg/simplefeed/repo/mongo"
	"github.com/tendant/simple-feed/pkg/simplefeed/repo/repotest"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestMongoRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("TEST_MONGO_URL not set")
	}

	ctx := context.Background()
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("simplefeed_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	repotest.Run(t, func(t *testing.T) simplefeed.Repository {
		require.NoError(t, db.Collection(feedmongo.ContentCollection).Drop(ctx))
		require.NoError(t, db.Collection(feedmongo.ProfileCollection).Drop(ctx))
		repo := feedmongo.New(db)
		require.NoError(t, repo.EnsureIndexes(ctx))
		return repo
	})
}
