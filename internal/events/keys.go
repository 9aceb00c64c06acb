package events

import (
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// Namespaces used by the data layer.
const (
	SystemData    = "data"
	LayerDocument = "document"
	LayerModel    = "model"
)

// Event names.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// DocumentKey returns the key of a document event.
func DocumentKey(name string) Key { return Key{System: SystemData, Layer: LayerDocument, Name: name} }

// ModelKey returns the key of a model event.
func ModelKey(name string) Key { return Key{System: SystemData, Layer: LayerModel, Name: name} }

// DocumentEvent is the payload of document events. Previous is set for updates and deletes.
type DocumentEvent struct {
	User     string
	Model    dommodel.Model
	Document domdoc.Document
	Previous *domdoc.Document
}

// ModelEvent is the payload of model events. Previous is set for updates.
type ModelEvent struct {
	User     string
	Model    dommodel.Model
	Previous *dommodel.Model
}

// RegisterData declares the data-layer namespaces on b.
func RegisterData(b *Bus) {
	b.Register(SystemData, LayerDocument)
	b.Register(SystemData, LayerModel)
}
