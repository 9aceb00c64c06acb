package model

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// modelRow is the stored shape of a model definition.
type modelRow struct {
	ID             primitive.ObjectID    `bson:"_id,omitempty"`
	User           string                `bson:"_user"`
	Name           string                `bson:"name"`
	Description    string                `bson:"description,omitempty"`
	Fields         []field.Field         `bson:"fields"`
	Tags           []string              `bson:"tags,omitempty"`
	Constraints    []dommodel.Constraint `bson:"constraints,omitempty"`
	History        dommodel.History      `bson:"history"`
	Icon           string                `bson:"icon,omitempty"`
	Locked         bool                  `bson:"locked,omitempty"`
	MaxRequestData int                   `bson:"maxRequestData,omitempty"`
	CreatedAt      int64                 `bson:"_createdAt"`
	UpdatedAt      int64                 `bson:"_updatedAt"`
}

func rowFromModel(m dommodel.Model) (modelRow, error) {
	s := m.Spec()
	row := modelRow{
		User:           m.Owner(),
		Name:           s.Name,
		Description:    s.Description,
		Fields:         s.Fields,
		Tags:           s.Tags,
		Constraints:    s.Constraints,
		History:        s.History,
		Icon:           s.Icon,
		Locked:         s.Locked,
		MaxRequestData: s.MaxRequestData,
		CreatedAt:      m.CreatedAt(),
		UpdatedAt:      m.UpdatedAt(),
	}
	if m.ID() != "" {
		oid, err := primitive.ObjectIDFromHex(m.ID())
		if err != nil {
			return modelRow{}, fmt.Errorf("invalid model id %q: %w", m.ID(), err)
		}
		row.ID = oid
	}
	return row, nil
}

func (r modelRow) toModel() dommodel.Model {
	id := ""
	if !r.ID.IsZero() {
		id = r.ID.Hex()
	}
	return dommodel.Reconstruct(id, r.User, dommodel.Spec{
		Name:           r.Name,
		Description:    r.Description,
		Fields:         r.Fields,
		Tags:           r.Tags,
		Constraints:    r.Constraints,
		History:        r.History,
		Icon:           r.Icon,
		Locked:         r.Locked,
		MaxRequestData: r.MaxRequestData,
	}, r.CreatedAt, r.UpdatedAt)
}

// toBSON flattens a row into the generic document shape the store accepts.
func toBSON(r modelRow) (bson.M, error) {
	raw, err := bson.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return m, nil
}

func fromBSON(m bson.M) (modelRow, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return modelRow{}, fmt.Errorf("marshal model: %w", err)
	}
	var r modelRow
	if err := bson.Unmarshal(raw, &r); err != nil {
		return modelRow{}, fmt.Errorf("decode model: %w", err)
	}
	return r, nil
}
