package field

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/dataforge/internal/domain/geo"
)

var (
	scriptTag   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	eventAttr   = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	colorRegex  = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|rgba?\([^)]*\)|hsla?\([^)]*\))$`)
	phoneRegex  = regexp.MustCompile(`^\+?[0-9 ()./-]{3,32}$`)
	dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02", "02.01.2006", "01/02/2006"}
)

// Coerce converts v into the stored representation of f.
// nil stays nil. Relation values pass through untouched: they are resolved by the writer.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	out, err := f.coerce(v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return out, nil
}

// CoerceLenient is Coerce for bulk input: a value that cannot be converted
// degrades to the field default instead of failing.
func (f Field) CoerceLenient(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && !f.Type.IsTextual() {
		return f.Default
	}
	if s, ok := v.(string); ok {
		switch f.Type {
		case Array:
			v = splitList(s)
		case Object, Geolocation:
			var parsed any
			if json.Unmarshal([]byte(s), &parsed) == nil {
				v = parsed
			}
		case Relation:
			if f.Multiple {
				v = splitList(s)
			}
		}
	}
	out, err := f.Coerce(v)
	if err != nil {
		return f.Default
	}
	return out
}

func (f Field) coerce(v any) (any, error) {
	switch f.Type {
	case String, Code, CronSchedule, ModelRef, ModelField, Password:
		return f.text(v)
	case StringT, RichTextT:
		if m, ok := v.(map[string]any); ok {
			return f.translations(m)
		}
		return f.text(v)
	case RichText:
		s, err := f.text(v)
		if err != nil {
			return nil, err
		}
		return Sanitize(s), nil
	case Email:
		s, err := f.text(v)
		if err != nil {
			return nil, err
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return nil, fmt.Errorf("invalid email %q", s)
		}
		return s, nil
	case URL:
		s, err := f.text(v)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid url %q", s)
		}
		return s, nil
	case Color:
		return f.matching(v, colorRegex, "color")
	case Phone:
		return f.matching(v, phoneRegex, "phone number")
	case Number:
		return f.number(v)
	case Boolean:
		return toBool(v)
	case Date, DateTime:
		return toTime(v)
	case Enum:
		s, err := f.text(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(f.Items, s) {
			return nil, fmt.Errorf("%q is not one of %v", s, f.Items)
		}
		return s, nil
	case File:
		return f.text(v)
	case Array:
		return f.array(v)
	case Object:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		return m, nil
	case Geolocation:
		return toPoint(v)
	case Relation:
		return v, nil
	case Calculated:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported type %q", f.Type)
}

func (f Field) text(v any) (string, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	case bool, int, int32, int64, float32, float64, json.Number:
		s = fmt.Sprint(t)
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
		return "", fmt.Errorf("longer than %d characters", f.MaxLength)
	}
	return s, nil
}

func (f Field) translations(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for lang, v := range m {
		s, err := f.text(v)
		if err != nil {
			return nil, fmt.Errorf("translation %q: %w", lang, err)
		}
		if f.Type == RichTextT {
			s = Sanitize(s)
		}
		out[lang] = s
	}
	return out, nil
}

func (f Field) matching(v any, re *regexp.Regexp, what string) (string, error) {
	s, err := f.text(v)
	if err != nil {
		return "", err
	}
	if !re.MatchString(strings.TrimSpace(s)) {
		return "", fmt.Errorf("invalid %s %q", what, s)
	}
	return strings.TrimSpace(s), nil
}

func (f Field) number(v any) (float64, error) {
	n, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f.Min != nil && n < *f.Min {
		return 0, fmt.Errorf("%v is below the minimum %v", n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return 0, fmt.Errorf("%v is above the maximum %v", n, *f.Max)
	}
	return n, nil
}

func (f Field) array(v any) ([]any, error) {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	default:
		items = []any{v}
	}
	item := Field{Name: f.Name, Type: f.ItemsType, Items: f.Items, Min: f.Min, Max: f.Max, MaxLength: f.MaxLength}
	out := make([]any, 0, len(items))
	for i, e := range items {
		if e == nil {
			continue
		}
		c, err := item.coerce(e)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Sanitize strips script elements and inline event handlers from markup.
func Sanitize(s string) string {
	s = scriptTag.ReplaceAllString(s, "")
	return eventAttr.ReplaceAllString(s, "")
}

func toFloat(v any) (float64, error) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", t)
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", t)
		}
		n = f
	case bool:
		if t {
			n = 1
		}
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("number must be finite")
	}
	return n, nil
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", t)
	}
	n, err := toFloat(v)
	if err != nil {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return n != 0, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case interface{ Time() time.Time }:
		return t.Time().UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid date %q", t)
	}
	n, err := toFloat(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected date, got %T", v)
	}
	return time.UnixMilli(int64(n)).UTC(), nil
}

// toPoint accepts {lat,lng}, {latitude,longitude}, [lng,lat] or a GeoJSON Point
// and returns a GeoJSON Point.
func toPoint(v any) (map[string]any, error) {
	var lng, lat any
	switch t := v.(type) {
	case map[string]any:
		switch {
		case t["coordinates"] != nil:
			return toPoint(t["coordinates"])
		case t["lat"] != nil:
			lat, lng = t["lat"], first(t["lng"], t["lon"])
		case t["latitude"] != nil:
			lat, lng = t["latitude"], t["longitude"]
		default:
			return nil, fmt.Errorf("geolocation needs lat and lng")
		}
	case []any:
		if len(t) != 2 {
			return nil, fmt.Errorf("geolocation needs [lng, lat]")
		}
		lng, lat = t[0], t[1]
	default:
		return nil, fmt.Errorf("expected geolocation, got %T", v)
	}
	x, err := toFloat(lng)
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	y, err := toFloat(lat)
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	p, err := geo.NewPoint(x, y)
	if err != nil {
		return nil, err
	}
	return p.GeoJSON(), nil
}

func first(vs ...any) any {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func splitList(s string) []any {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var arr []any
		if json.Unmarshal([]byte(s), &arr) == nil {
			return arr
		}
	}
	var out []any
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
