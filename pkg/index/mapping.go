package index

import "sort"

// FieldType is the declared type of a mapped field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldDate    FieldType = "date"
)

// IndexOption controls how a field is indexed.
type IndexOption string

const (
	// IndexNo stores the field without making it searchable.
	IndexNo IndexOption = "no"
	// IndexAnalyzed makes the field full-text searchable.
	IndexAnalyzed IndexOption = "analyzed"
	// IndexNotAnalyzed makes the field searchable as an exact term.
	IndexNotAnalyzed IndexOption = "not_analyzed"
)

// Field describes one mapped document field.
type Field struct {
	Type   FieldType   `json:"type"`
	Index  IndexOption `json:"index,omitempty"`
	Format string      `json:"format,omitempty"`
}

// Mapping is the field schema an updater requires of its index.
type Mapping struct {
	Properties map[string]Field `json:"properties"`
}

// FieldNames returns the mapped field names in sorted order.
func (m Mapping) FieldNames() []string {
	names := make([]string, 0, len(m.Properties))
	for name := range m.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Searchable returns the sorted names of fields that are indexed.
func (m Mapping) Searchable() []string {
	var names []string
	for _, name := range m.FieldNames() {
		if m.Properties[name].Index != IndexNo {
			names = append(names, name)
		}
	}
	return names
}
