package pagekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// jsonKind is the expected JSON type of a top-level PageData field.
type jsonKind byte

const (
	kindObject jsonKind = '{'
	kindArray  jsonKind = '['
	kindString jsonKind = '"'
	kindNumber jsonKind = '0'
	kindTime   jsonKind = 't'
)

func (k jsonKind) String() string {
	switch k {
	case kindObject:
		return "an object"
	case kindArray:
		return "an array"
	case kindString:
		return "a string"
	case kindNumber:
		return "a number"
	default:
		return "a timestamp"
	}
}

// pageFields lists the top-level keys MergePageData understands.
// Keys not listed here are dropped.
var pageFields = map[string]jsonKind{
	"hero":           kindObject,
	"about":          kindObject,
	"portfolioPage":  kindObject,
	"portfolioIntro": kindString,
	"services":       kindArray,
	"portfolio":      kindArray,
	"testimonials":   kindArray,
	"contact":        kindObject,
	"colors":         kindObject,
	"typography":     kindObject,
	"schemaVersion":  kindNumber,
	"createdAt":      kindTime,
	"updatedAt":      kindTime,
}

func hasKind(v json.RawMessage, k jsonKind) bool {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return false
	}
	switch k {
	case kindNumber:
		return v[0] == '-' || (v[0] >= '0' && v[0] <= '9')
	case kindTime:
		var t time.Time
		return v[0] == '"' && t.UnmarshalJSON(v) == nil
	}
	return v[0] == byte(k)
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// MergePageData overlays raw (a JSON object) on DefaultPageData.
//
// Nested objects are merged field by field and colors/typography key by
// key. Top-level arrays replace the default wholesale, and anything else
// in their place resets them to empty. Any other null keeps the default.
// A value of the wrong JSON type keeps the default too; it is reported in
// ignored as "path: must be ..." and every other value is still applied.
// Only input that is not a JSON object is an error.
func MergePageData(raw []byte) (merged PageData, ignored []string, err error) {
	out := DefaultPageData()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil, nil
	}
	if raw[0] != '{' {
		return PageData{}, nil, validationError("invalid data: page data must be a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return PageData{}, nil, validationError("invalid data: malformed JSON")
	}
	// A document without schemaVersion predates versioning.
	out.SchemaVersion = 0

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	m := &merger{}
	for _, key := range keys {
		val := bytes.TrimSpace(fields[key])
		kind, known := pageFields[key]
		if !known {
			continue
		}
		if !hasKind(val, kind) {
			// Top-level arrays that are not arrays reset to empty.
			if kind == kindArray {
				resetList(&out, key)
			}
			// An empty timestamp is the same as none.
			if !isNull(val) && (kind != kindTime || string(val) != `""`) {
				m.ignore(key, "must be "+kind.String())
			}
			continue
		}
		switch key {
		case "hero":
			m.decode(key, val, &out.Hero)
		case "about":
			m.decode(key, val, &out.About)
		case "portfolioPage":
			m.decode(key, val, &out.PortfolioPage)
		case "contact":
			m.decode(key, val, &out.Contact)
		case "portfolioIntro":
			m.decode(key, val, &out.PortfolioIntro)
		case "services":
			out.Services = decodeList[Service](m, key, val)
		case "portfolio":
			out.Portfolio = decodeList[PortfolioItem](m, key, val)
		case "testimonials":
			out.Testimonials = decodeList[Testimonial](m, key, val)
		case "colors":
			m.decodeTheme(key, val, out.Colors)
		case "typography":
			m.decodeTheme(key, val, out.Typography)
		case "schemaVersion":
			m.decode(key, val, &out.SchemaVersion)
		case "createdAt":
			m.decode(key, val, &out.CreatedAt)
		case "updatedAt":
			m.decode(key, val, &out.UpdatedAt)
		}
	}
	normalizePageData(&out)
	return out, m.ignored, nil
}

func resetList(p *PageData, key string) {
	switch key {
	case "services":
		p.Services = []Service{}
	case "portfolio":
		p.Portfolio = []PortfolioItem{}
	case "testimonials":
		p.Testimonials = []Testimonial{}
	}
}

// merger collects the values MergePageData had to leave out.
type merger struct {
	ignored []string
}

func (m *merger) ignore(path, reason string) {
	m.ignored = append(m.ignored, path+": "+reason)
}

// decode unmarshals raw onto dst. encoding/json skips a field of the wrong
// type and keeps decoding the rest, so dst keeps its previous value for
// that field only.
func (m *merger) decode(path string, raw json.RawMessage, dst any) {
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		if te.Field != "" {
			path += "." + te.Field
		}
		m.ignore(path, "must be "+describeType(te.Type))
		return
	}
	m.ignore(path, "invalid value")
}

// decodeTheme merges a colors/typography object into dst key by key.
// Numbers and booleans are kept as their JSON text.
func (m *merger) decodeTheme(path string, raw json.RawMessage, dst map[string]string) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		m.ignore(path, "must be an object")
		return
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := bytes.TrimSpace(entries[key])
		switch {
		case isNull(val):
		case val[0] == '"':
			var s string
			if json.Unmarshal(val, &s) == nil {
				dst[key] = s
			}
		case val[0] == '{' || val[0] == '[':
			m.ignore(path+"."+key, "must be a string or number")
		default:
			dst[key] = string(val)
		}
	}
}

// decodeList decodes a JSON array element by element so one bad entry
// does not cost the others.
func decodeList[T any](m *merger, path string, raw json.RawMessage) []T {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		m.ignore(path, "must be an array")
		return []T{}
	}
	out := make([]T, 0, len(elems))
	for i, elem := range elems {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		if !hasKind(elem, kindObject) {
			m.ignore(elemPath, "must be an object")
			continue
		}
		var item T
		m.decode(elemPath, elem, &item)
		out = append(out, item)
	}
	return out
}

func describeType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return "a timestamp"
		}
		return "an object"
	case reflect.Map:
		return "an object"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	}
	return "a " + t.String()
}

// normalizePageData replaces nils left by JSON nulls so the document
// always serializes with arrays and objects, never null.
func normalizePageData(p *PageData) {
	if p.About.Features == nil {
		p.About.Features = []string{}
	}
	if p.Services == nil {
		p.Services = []Service{}
	}
	if p.Portfolio == nil {
		p.Portfolio = []PortfolioItem{}
	}
	if p.Testimonials == nil {
		p.Testimonials = []Testimonial{}
	}
	if p.Colors == nil {
		p.Colors = DefaultPageData().Colors
	}
	if p.Typography == nil {
		p.Typography = DefaultPageData().Typography
	}
	for i := range p.Services {
		if p.Services[i].ImageSize == "" {
			p.Services[i].ImageSize = defaultImageSize
		}
	}
}

// ValidatePageData checks the required fields of embedded entries.
func ValidatePageData(p PageData) error {
	for i, s := range p.Services {
		if strings.TrimSpace(s.Title) == "" {
			return validationError(fmt.Sprintf("services[%d]: title is required", i))
		}
		if strings.TrimSpace(s.Description) == "" {
			return validationError(fmt.Sprintf("services[%d]: description is required", i))
		}
	}
	return nil
}

// PageService reads and writes the singleton PageData document.
// Concurrent saves are last-writer-wins.
type PageService struct {
	store PageStore
	log   *zap.Logger
	now   func() time.Time
}

// NewPageService creates a PageService backed by store.
func NewPageService(store PageStore, log *zap.Logger, now func() time.Time) *PageService {
	if now == nil {
		now = time.Now
	}
	return &PageService{store: store, log: log, now: now}
}

// FetchOrCreate returns the stored document merged with the current
// defaults, creating it from the defaults when none exists. The merged
// result is written back unless part of the stored document could not be
// decoded; that document is left as it is for an admin to repair.
func (s *PageService) FetchOrCreate(ctx context.Context) (PageData, error) {
	raw, found, err := s.store.Load(ctx)
	if err != nil {
		return PageData{}, storeUnavailableError(err)
	}
	if !found {
		data := DefaultPageData()
		if err := s.persist(ctx, &data, time.Time{}); err != nil {
			return PageData{}, err
		}
		s.log.Info("page data created from defaults")
		return data, nil
	}

	merged, ignored, err := MergePageData(raw)
	if err != nil {
		s.log.Warn("stored page data is not an object, serving defaults", zap.Error(err))
		return DefaultPageData(), nil
	}
	if len(ignored) > 0 {
		s.log.Warn("stored page data has invalid fields, not writing back",
			zap.Strings("fields", ignored))
		return merged, nil
	}
	if merged.SchemaVersion < SchemaVersion {
		s.log.Info("upgrading page data schema",
			zap.Int("from", merged.SchemaVersion),
			zap.Int("to", SchemaVersion))
	}
	if err := s.persist(ctx, &merged, merged.CreatedAt); err != nil {
		return PageData{}, err
	}
	return merged, nil
}

// Save merges payload with the defaults, validates and persists it, and
// returns the merged document.
func (s *PageService) Save(ctx context.Context, payload []byte) (PageData, error) {
	merged, ignored, err := MergePageData(payload)
	if err != nil {
		return PageData{}, err
	}
	if len(ignored) > 0 {
		return PageData{}, validationError("invalid data: " + strings.Join(ignored, "; "))
	}
	if err := ValidatePageData(merged); err != nil {
		return PageData{}, err
	}

	createdAt := merged.CreatedAt
	if createdAt.IsZero() {
		raw, found, err := s.store.Load(ctx)
		if err != nil {
			return PageData{}, storeUnavailableError(err)
		}
		if found {
			var existing struct {
				CreatedAt time.Time `json:"createdAt"`
			}
			if json.Unmarshal(raw, &existing) == nil {
				createdAt = existing.CreatedAt
			}
		}
	}
	if err := s.persist(ctx, &merged, createdAt); err != nil {
		return PageData{}, err
	}
	return merged, nil
}

func (s *PageService) persist(ctx context.Context, p *PageData, createdAt time.Time) error {
	now := s.now().UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = now
	p.SchemaVersion = SchemaVersion
	if err := s.store.Save(ctx, *p); err != nil {
		return storeUnavailableError(err)
	}
	return nil
}
