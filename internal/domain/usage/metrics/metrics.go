package metrics

// Metrics holds a user's stored data footprint.
type Metrics struct {
	models       int
	documents    int64
	storageBytes int64
}

// New creates a Metrics snapshot.
func New(models int, documents, storageBytes int64) Metrics {
	return Metrics{models: models, documents: documents, storageBytes: storageBytes}
}

// Models returns the number of models.
func (m Metrics) Models() int { return m.models }

// Documents returns the number of stored documents.
func (m Metrics) Documents() int64 { return m.documents }

// StorageBytes returns the approximate stored size.
func (m Metrics) StorageBytes() int64 { return m.storageBytes }
