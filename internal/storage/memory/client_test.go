package memory

import (
	"testing"

	"github.com/sessiond/internal/storage"
	"github.com/sessiond/internal/storage/storagetest"
)

func TestClient_SessionStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.SessionStore {
		c := New()
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}
