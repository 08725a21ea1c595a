package adapter_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewStorage(ctx, bucket, adapter.WithStoragePrefix("isabella-test"))
	gt.NoError(t, err)
	defer client.Close()

	key := "transcripts/" + uuid.New().String() + ".json"
	w, err := client.Put(ctx, key)
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"turns":[]}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := client.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(body), `{"turns":[]}`)

	_, err = client.Get(ctx, "transcripts/missing-"+uuid.New().String()+".json")
	gt.Error(t, err)
}
