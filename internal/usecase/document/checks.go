package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// prepare coerces data to the model and enforces the payload cap.
func (s *Service) prepare(m dommodel.Model, data map[string]any, lenient bool) (map[string]any, int64, error) {
	size := payloadSize(data)
	limit := int64(m.MaxRequestData())
	if limit <= 0 {
		limit = s.limits.MaxRequestBytes
	}
	if limit > 0 && size > limit {
		return nil, 0, &domain.CapacityError{Kind: domain.CapacityPayload, Limit: limit, Used: size}
	}
	norm, err := m.Normalize(data, lenient)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return norm, size, nil
}

func payloadSize(data map[string]any) int64 {
	b, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// precheck runs the capacity check and the composite constraint check in parallel.
// Capacity failures are returned as errors, constraint collisions as violations.
func (s *Service) precheck(
	ctx context.Context, user string, m dommodel.Model, rows []map[string]any, docs, bytes int64, exclude string,
) ([]domain.Violation, error) {
	var violations []domain.Violation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.capacity == nil {
			return nil
		}
		return s.capacity.Check(gctx, user, docs, bytes)
	})
	g.Go(func() error {
		v, err := s.compositeViolations(gctx, user, m, rows, exclude)
		violations = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return violations, nil
}

// compositeViolations finds rows whose composite keys collide with stored documents
// or with an earlier row. Rows are checked in batches with one $or query per constraint;
// batches run one after another, the constraints of a batch concurrently.
// A row with a null key component is exempt.
func (s *Service) compositeViolations(
	ctx context.Context, user string, m dommodel.Model, rows []map[string]any, exclude string,
) ([]domain.Violation, error) {
	constraints := m.Constraints()
	if len(constraints) == 0 || len(rows) == 0 {
		return nil, nil
	}
	var excludeID any
	if exclude != "" {
		oid, err := primitive.ObjectIDFromHex(exclude)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %q", domain.ErrDocumentNotFound, exclude)
		}
		excludeID = oid
	}

	var (
		mu         sync.Mutex
		violations []domain.Violation
	)
	add := func(keys []string, row map[string]any, i int) {
		values := make(map[string]any, len(keys))
		for _, k := range keys {
			values[k] = row[k]
		}
		mu.Lock()
		violations = append(violations, domain.Violation{Keys: keys, Values: values, Index: i})
		mu.Unlock()
	}

	seen := make([]map[string]bool, len(constraints))
	for ci := range constraints {
		seen[ci] = map[string]bool{}
	}

	size := s.limits.CompositeBatchSize
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.limits.LinkConcurrency)
		for ci, c := range constraints {
			g.Go(func() error {
				pending := map[string][]int{}
				or := bson.A{}
				for i := start; i < end; i++ {
					key, ok := compositeKey(c.Keys, rows[i])
					if !ok {
						continue
					}
					if seen[ci][key] {
						add(c.Keys, rows[i], i)
						continue
					}
					seen[ci][key] = true
					pending[key] = append(pending[key], i)
					clause := bson.M{}
					for _, k := range c.Keys {
						clause[k] = rows[i][k]
					}
					or = append(or, clause)
				}
				if len(or) == 0 {
					return nil
				}
				filter := bson.M{"$or": or}
				if excludeID != nil {
					filter[domdoc.KeyID] = bson.M{"$ne": excludeID}
				}
				found, err := s.repo.FindFields(gctx, user, m.Name(), filter, c.Keys)
				if err != nil {
					return fmt.Errorf("check constraint %s: %w", strings.Join(c.Keys, "+"), err)
				}
				for _, row := range found {
					key, ok := compositeKey(c.Keys, row)
					if !ok {
						continue
					}
					for _, i := range pending[key] {
						add(c.Keys, rows[i], i)
					}
					delete(pending, key)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(violations, func(a, b int) bool { return violations[a].Index < violations[b].Index })
	return violations, nil
}

// compositeKey renders the key components of row. ok is false when one is null.
// Components are tagged by kind so 1 and "1" never share a key, and numbers
// and times compare the same whether they came from input or from the store.
func compositeKey(keys []string, row map[string]any) (string, bool) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, present := row[k]
		if !present || v == nil {
			return "", false
		}
		parts[i] = keyPart(v)
	}
	return strings.Join(parts, "\x00"), true
}

func keyPart(v any) string {
	switch x := v.(type) {
	case string:
		return "s:" + strconv.Quote(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case primitive.DateTime:
		return "t:" + x.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return "o:" + x.Hex()
	}
	if f, ok := keyNumber(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("x:%T:%v", v, v)
}

func keyNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// checkUnique fails fast on the first unique field already held by another document.
func (s *Service) checkUnique(ctx context.Context, d domdoc.Document, m dommodel.Model, exclude string) error {
	for _, f := range m.UniqueFields() {
		v, ok := d.Data()[f.Name]
		if !ok || v == nil {
			continue
		}
		filter := bson.M{f.Name: v}
		if exclude != "" {
			oid, err := primitive.ObjectIDFromHex(exclude)
			if err != nil {
				return fmt.Errorf("%w: invalid id %q", domain.ErrDocumentNotFound, exclude)
			}
			filter[domdoc.KeyID] = bson.M{"$ne": oid}
		}
		taken, err := s.repo.Exists(ctx, d.User(), d.Model(), filter)
		if err != nil {
			return fmt.Errorf("check unique %s: %w", f.Name, err)
		}
		if taken {
			return domain.NewUniqueViolation(m.Name(), f.Name, v)
		}
	}
	return nil
}

// hashPasswords replaces plain password values with bcrypt hashes. Values that
// already are bcrypt hashes are kept so stored documents can be rewritten.
func (s *Service) hashPasswords(m dommodel.Model, data map[string]any) error {
	for _, f := range m.FieldsOfType(field.Password) {
		plain, ok := data[f.Name].(string)
		if !ok || plain == "" || isBcrypt(plain) {
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(plain), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("%w: field %q: %w", domain.ErrValidation, f.Name, err)
		}
		data[f.Name] = string(h)
	}
	return nil
}

func isBcrypt(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
