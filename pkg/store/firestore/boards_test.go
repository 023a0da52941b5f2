package firestore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/vango-go/poppy/pkg/store/storetest"
)

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestBoards_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, "poppy-test")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	storetest.RunBoards(t, NewBoards(client, "boards-"+uuid.NewString()))
}

func TestNewClient_RequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBoardDoc_DefaultsEmptySlices(t *testing.T) {
	b := boardDoc{Title: "t", Docs: []boardDocEntry{{ID: "1", Name: "n", Text: "x"}}}.board("id")
	if b.ID != "id" || b.Links == nil || len(b.Docs) != 1 || b.Docs[0].Name != "n" {
		t.Fatalf("board = %+v", b)
	}
}
