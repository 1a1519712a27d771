package storage

import (
	"context"
	"sync"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
)

// MemoryReceiptArchive keeps archived receipts in memory. It is used when
// object storage is disabled and in tests.
type MemoryReceiptArchive struct {
	mu      sync.RWMutex
	objects map[string]string
}

// NewMemoryReceiptArchive creates an empty archive
func NewMemoryReceiptArchive() *MemoryReceiptArchive {
	return &MemoryReceiptArchive{objects: make(map[string]string)}
}

// Store implements appinvoicing.ReceiptArchive. Existing entries are kept.
func (m *MemoryReceiptArchive) Store(_ context.Context, snapshot *invoicing.ReceiptSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapshot.ID.String()
	if _, ok := m.objects[key]; !ok {
		m.objects[key] = snapshot.CanonicalSnapshot
	}
	return nil
}

// Get returns the archived canonical text of a receipt
func (m *MemoryReceiptArchive) Get(receiptID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.objects[receiptID]
	return v, ok
}

// Len returns the number of archived receipts
func (m *MemoryReceiptArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ appinvoicing.ReceiptArchive = (*MemoryReceiptArchive)(nil)
