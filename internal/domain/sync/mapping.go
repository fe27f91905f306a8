package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// SourceRecord
// ---------------------------------------------------------------------------

// SourceRecord is one raw external record as decoded from the marketplace
// listing or webhook payload.
type SourceRecord map[string]any

// GetString returns the string value of a field, coercing numbers
func (r SourceRecord) GetString(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// ---------------------------------------------------------------------------
// Transform Functions
// ---------------------------------------------------------------------------

// TransformFunc converts a source field value into its target representation
type TransformFunc func(value any) (any, error)

// transformRegistry holds the named transforms a FieldMapping may reference.
// The set is fixed at load time; mappings referencing an unknown name fail
// validation instead of panicking at reconcile time.
var transformRegistry = map[string]TransformFunc{
	"trim":         transformTrim,
	"upper":        transformUpper,
	"lower":        transformLower,
	"int":          transformInt,
	"decimal":      transformDecimal,
	"time_rfc3339": transformTimeRFC3339,
}

func transformTrim(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("trim: expected string, got %T", value)
	}
	return strings.TrimSpace(s), nil
}

func transformUpper(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("upper: expected string, got %T", value)
	}
	return strings.ToUpper(s), nil
}

func transformLower(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("lower: expected string, got %T", value)
	}
	return strings.ToLower(s), nil
}

func transformInt(value any) (any, error) {
	switch t := value.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: %q is not an integer", t)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("int: cannot convert %T", value)
	}
}

// transformDecimal normalizes marketplace money fields, which arrive as
// strings or JSON numbers, into a canonical decimal string.
func transformDecimal(value any) (any, error) {
	switch t := value.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("decimal: %q is not a number", t)
		}
		return d.String(), nil
	case float64:
		return decimal.NewFromFloat(t).String(), nil
	case int64:
		return decimal.NewFromInt(t).String(), nil
	default:
		return nil, fmt.Errorf("decimal: cannot convert %T", value)
	}
}

func transformTimeRFC3339(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("time_rfc3339: expected string, got %T", value)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("time_rfc3339: %q: %v", s, err)
	}
	return t.UTC().Format(time.RFC3339), nil
}

// LookupTransform returns the named transform function
func LookupTransform(name string) (TransformFunc, bool) {
	fn, ok := transformRegistry[name]
	return fn, ok
}

// ---------------------------------------------------------------------------
// Field and Table Mappings
// ---------------------------------------------------------------------------

// ForeignKeyRef declares that a source field holds the external id of a
// record in another source table; the reconciler resolves it to the internal
// id through the mapping table before writing.
type ForeignKeyRef struct {
	// SourceTable is the external table the referenced record lives in
	SourceTable string
}

// FieldMapping maps one source field to one target field, with an optional
// named transform and an optional foreign key reference.
type FieldMapping struct {
	// Source is the field name in the external record
	Source string
	// Target is the field name in the internal record
	Target string
	// Required rejects the whole record when the source field is absent
	Required bool
	// Transform is the name of a registered transform function (optional)
	Transform string
	// Ref marks the field as a foreign key into another source table (optional)
	Ref *ForeignKeyRef
}

// TableMapping declares how records of one external table become internal
// records. Mappings are static configuration validated at load time; no
// runtime schema reflection is involved.
type TableMapping struct {
	// SourceTable is the external resource name (e.g. "orders")
	SourceTable string
	// TargetType is the internal entity type to write
	TargetType string
	// ListPath is the marketplace API path for the paginated listing
	ListPath string
	// IDField is the source field holding the external record id
	IDField string
	// Fields are the field-level mappings
	Fields []FieldMapping
}

// Validate checks a single table mapping
func (m *TableMapping) Validate() error {
	if m.SourceTable == "" || m.TargetType == "" {
		return fmt.Errorf("%w: source table and target type are required", ErrMappingInvalidSpec)
	}
	if m.IDField == "" {
		return fmt.Errorf("%w: %s: id field is required", ErrMappingInvalidSpec, m.SourceTable)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("%w: %s: at least one field mapping is required", ErrMappingInvalidSpec, m.SourceTable)
	}

	targets := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Source == "" || f.Target == "" {
			return fmt.Errorf("%w: %s: field source and target are required", ErrMappingInvalidSpec, m.SourceTable)
		}
		if _, dup := targets[f.Target]; dup {
			return fmt.Errorf("%w: %s: duplicate target field %q", ErrMappingInvalidSpec, m.SourceTable, f.Target)
		}
		targets[f.Target] = struct{}{}
		if f.Transform != "" {
			if _, ok := LookupTransform(f.Transform); !ok {
				return fmt.Errorf("%w: %s: unknown transform %q", ErrMappingInvalidSpec, m.SourceTable, f.Transform)
			}
		}
		if f.Ref != nil && f.Ref.SourceTable == "" {
			return fmt.Errorf("%w: %s: foreign key ref requires a source table", ErrMappingInvalidSpec, m.SourceTable)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// MappingSet
// ---------------------------------------------------------------------------

// MappingSet is an ordered collection of table mappings. Order matters: the
// orchestrator processes tables in declaration order so that parents are
// reconciled before the children referencing them.
type MappingSet struct {
	tables []TableMapping
	byName map[string]*TableMapping
}

// NewMappingSet validates the declared mappings and checks that every
// foreign key ref points at an earlier table in the set.
func NewMappingSet(tables []TableMapping) (*MappingSet, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: empty mapping set", ErrMappingInvalidSpec)
	}

	set := &MappingSet{
		tables: tables,
		byName: make(map[string]*TableMapping, len(tables)),
	}
	seen := make(map[string]struct{}, len(tables))
	for i := range tables {
		m := &tables[i]
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[m.SourceTable]; dup {
			return nil, fmt.Errorf("%w: duplicate source table %q", ErrMappingInvalidSpec, m.SourceTable)
		}
		for _, f := range m.Fields {
			if f.Ref == nil {
				continue
			}
			if _, ok := seen[f.Ref.SourceTable]; !ok {
				return nil, fmt.Errorf("%w: %s.%s references %q which is not declared earlier in the set",
					ErrMappingInvalidSpec, m.SourceTable, f.Source, f.Ref.SourceTable)
			}
		}
		seen[m.SourceTable] = struct{}{}
		set.byName[m.SourceTable] = m
	}
	return set, nil
}

// ForTable returns the mapping for a source table
func (s *MappingSet) ForTable(sourceTable string) (*TableMapping, bool) {
	m, ok := s.byName[sourceTable]
	return m, ok
}

// Tables returns the source tables in processing order
func (s *MappingSet) Tables() []string {
	names := make([]string, len(s.tables))
	for i := range s.tables {
		names[i] = s.tables[i].SourceTable
	}
	return names
}
