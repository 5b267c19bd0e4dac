package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActions(t *testing.T) {
	up := NewUpsertAction("landregistry", "property_by_postcode_3", "T1-SW112DR", map[string]any{"postcode": "SW112DR"})
	assert.Equal(t, ActionUpsert, up.Type)
	assert.Equal(t, Target{"landregistry", "property_by_postcode_3"}, up.Target())
	assert.Equal(t, "landregistry/property_by_postcode_3", up.Target().String())

	del := NewDeleteAction("landregistry", "property_by_postcode_3", "T1-SW112DR")
	assert.Equal(t, ActionDelete, del.Type)
	assert.Nil(t, del.Document)
}

func TestBulkResultErr(t *testing.T) {
	var nilResult *BulkResult
	assert.NoError(t, nilResult.Err())
	assert.NoError(t, (&BulkResult{Succeeded: 3}).Err())

	res := &BulkResult{
		Succeeded: 1,
		Errors: []ActionError{
			{Index: 1, Type: ActionUpsert, ID: "T2-X", Reason: "mapper_parsing_exception"},
		},
	}
	err := res.Err()
	require.Error(t, err)

	var bulkErr *BulkError
	require.True(t, errors.As(err, &bulkErr))
	assert.Len(t, bulkErr.Errors, 1)
	assert.Contains(t, err.Error(), "1 bulk action(s) failed")
	assert.Contains(t, err.Error(), "update T2-X (action 1): mapper_parsing_exception")
}

func TestMappingFieldNames(t *testing.T) {
	m := Mapping{Properties: map[string]Field{
		"title_number":   {Type: FieldString, Index: IndexNo},
		"postcode":       {Type: FieldString, Index: IndexNotAnalyzed},
		"address_string": {Type: FieldString, Index: IndexAnalyzed},
		"entry_datetime": {Type: FieldDate, Format: "date_time", Index: IndexNo},
	}}

	assert.Equal(t, []string{"address_string", "entry_datetime", "postcode", "title_number"}, m.FieldNames())
	assert.Equal(t, []string{"address_string", "postcode"}, m.Searchable())
}
