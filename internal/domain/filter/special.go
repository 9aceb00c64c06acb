package filter

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/geo"
)

// Operators the aggregation expression context rejects. They only work in a plain $match
// (or as the $geoNear stage) and must lead the pipeline.
var specialOps = map[string]bool{
	"$text":          true,
	"$near":          true,
	"$nearSphere":    true,
	"$geoWithin":     true,
	"$geoIntersects": true,
	"$regex":         true,
	"$geoNear":       true,
}

// DistanceField receives the computed distance of a $geoNear stage.
const DistanceField = "_distance"

// IsSpecial reports whether op must be routed to the leading match stage.
func IsSpecial(op string) bool { return specialOps[op] }

// HasSpecial walks v and reports whether any special operator appears at any depth.
func HasSpecial(v any) bool { return hasOp(v, IsSpecial) }

// Operators that run server-side JavaScript. They are rejected in every
// caller-supplied query, stage and stored relation filter.
var scriptOps = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

// FindScriptOp returns the first server-side JavaScript operator found in v.
func FindScriptOp(v any) (string, bool) {
	return FindOp(v, func(k string) bool { return scriptOps[k] })
}

// FindOp returns the first key in v, at any depth, accepted by match.
func FindOp(v any, match func(string) bool) (string, bool) {
	var found string
	ok := hasOp(v, func(k string) bool {
		if match(k) {
			found = k
			return true
		}
		return false
	})
	return found, ok
}

// HasOp walks v and reports whether op appears as a key at any depth.
func HasOp(v any, op string) bool {
	return hasOp(v, func(k string) bool { return k == op })
}

func hasOp(v any, match func(string) bool) bool {
	if _, ok := v.(primitive.Regex); ok {
		return match("$regex")
	}
	if m, ok := asMap(v); ok {
		for k, e := range m {
			if match(k) || hasOp(e, match) {
				return true
			}
		}
		return false
	}
	if arr, ok := asArray(v); ok {
		for _, e := range arr {
			if hasOp(e, match) {
				return true
			}
		}
	}
	return false
}

// Split partitions the top-level clauses of a query-syntax filter.
// Any clause containing a special operator goes to special whole, so a combinator
// is never split across stages.
func Split(query map[string]any) (special, rest bson.M) {
	special, rest = bson.M{}, bson.M{}
	for k, v := range query {
		if IsSpecial(k) || HasSpecial(v) {
			special[k] = v
			continue
		}
		rest[k] = v
	}
	return special, rest
}

// GeoNearFromSpecial converts the $nearSphere clause of special into a $geoNear stage body,
// folding the remaining special clauses into its query. found is false when no $nearSphere exists.
// Combining $nearSphere with $text or an explicit $geoNear fails with domain.ErrConflictingGeo.
func GeoNearFromSpecial(special bson.M) (stage bson.M, found bool, err error) {
	if !HasOp(special, "$nearSphere") {
		return nil, false, nil
	}
	if HasOp(special, "$text") || HasOp(special, "$geoNear") {
		return nil, true, fmt.Errorf("%w: $nearSphere cannot be combined with $text or $geoNear", domain.ErrConflictingGeo)
	}

	query := bson.M{}
	for k, v := range special {
		m, ok := asMap(v)
		if !ok {
			query[k] = v
			continue
		}
		near, isNear := m["$nearSphere"]
		if !isNear {
			query[k] = v
			continue
		}
		if stage != nil {
			return nil, true, fmt.Errorf("%w: more than one $nearSphere", domain.ErrConflictingGeo)
		}
		if stage, err = geoNearStage(k, near, m); err != nil {
			return nil, true, err
		}
	}
	if stage == nil {
		return nil, true, domain.Validationf("$nearSphere must be a top-level field condition")
	}
	if len(query) > 0 {
		stage["query"] = query
	}
	return stage, true, nil
}

func geoNearStage(key string, near any, clause map[string]any) (bson.M, error) {
	stage := bson.M{
		"key":           key,
		"distanceField": DistanceField,
		"spherical":     true,
	}
	if nm, ok := asMap(near); ok {
		if g, ok := nm["$geometry"]; ok {
			p, err := geometryPoint(g)
			if err != nil {
				return nil, domain.Validationf("$nearSphere on %s: %v", key, err)
			}
			stage["near"] = p.GeoJSON()
		} else {
			stage["near"] = nm
		}
		if v, ok := nm["$maxDistance"]; ok {
			stage["maxDistance"] = v
		}
		if v, ok := nm["$minDistance"]; ok {
			stage["minDistance"] = v
		}
	} else {
		stage["near"] = near
	}
	if v, ok := clause["$maxDistance"]; ok {
		stage["maxDistance"] = v
	}
	if v, ok := clause["$minDistance"]; ok {
		stage["minDistance"] = v
	}
	return stage, nil
}

func geometryPoint(g any) (geo.Point, error) {
	m, ok := asMap(g)
	if !ok {
		return geo.Point{}, fmt.Errorf("$geometry must be an object")
	}
	coords, _ := asArray(m["coordinates"])
	return geo.FromGeoJSON(map[string]any{"type": m["type"], "coordinates": coords})
}
