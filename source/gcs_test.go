package source

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/fullstorydev/emulators/storage/gcsemu"
)

func TestGCSSource(t *testing.T) {
	// start an in-memory Storage test server (for unit tests)
	svr, err := gcsemu.NewServer("127.0.0.1:9023", gcsemu.Options{})
	if err != nil {
		t.Fatalf("Error starting in-memory storage server: %s", err.Error())
	}
	defer svr.Close()
	err = os.Setenv("STORAGE_EMULATOR_HOST", "http://127.0.0.1:9023")
	if err != nil {
		t.Fatalf("Error setting env variable: %s", err.Error())
	}

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("Error creating storage client: %s", err.Error())
	}

	bucket := client.Bucket("test-bucket")
	if err := bucket.Create(ctx, "test-project", nil); err != nil {
		t.Fatalf("Failed to create bucket: %v", err)
	}

	object := bucket.Object("records.txt")
	w := object.NewWriter(ctx)
	if _, err := w.Write([]byte("alpha\nbeta\ngamma\n")); err != nil {
		t.Fatalf("Failed to upload file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close the GCS writer: %v", err)
	}

	src := &GCSSource{
		Name:       "test",
		BucketName: "test-bucket",
		ObjectName: "records.txt",
		Client:     client,
	}

	if src.GetPath() != "test-bucket/records.txt" {
		t.Errorf("unexpected path %q", src.GetPath())
	}

	records := collect(Records(ctx, src))
	expected := []string{"alpha", "beta", "gamma"}
	if len(records) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(records))
	}
	for i, record := range records {
		if record != expected[i] {
			t.Errorf("expected %q, got %q", expected[i], record)
		}
	}
}

func TestGCSSourceMissingObject(t *testing.T) {
	svr, err := gcsemu.NewServer("127.0.0.1:9024", gcsemu.Options{})
	if err != nil {
		t.Fatalf("Error starting in-memory storage server: %s", err.Error())
	}
	defer svr.Close()
	err = os.Setenv("STORAGE_EMULATOR_HOST", "http://127.0.0.1:9024")
	if err != nil {
		t.Fatalf("Error setting env variable: %s", err.Error())
	}

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("Error creating storage client: %s", err.Error())
	}

	src := &GCSSource{
		Name:       "test",
		BucketName: "no-such-bucket",
		ObjectName: "no-such-object",
		Client:     client,
	}
	if _, err := src.Open(ctx); err == nil {
		t.Error("expected an error opening a missing object")
	}
}
