package updater

import (
	"strings"

	"github.com/hashicorp-forge/indexsync/pkg/datefmt"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/models"
)

// postcodeDocFunc builds the document for one postcode of a live record.
type postcodeDocFunc func(record models.TitleRegisterData, addr address, postcode string) map[string]any

// postcodeUpdater indexes one document per postcode found for a title. The
// versions differ in postcode normalisation, document body and mapping.
type postcodeUpdater struct {
	*Base
	normalise bool
	document  postcodeDocFunc
	mapping   index.Mapping
}

func (u *postcodeUpdater) PrepareIndexActions(record models.TitleRegisterData) ([]index.Action, error) {
	data, err := decodeRegisterData(record)
	if err != nil {
		return nil, err
	}

	postcodes := data.Address.postcodes()
	actions := make([]index.Action, 0, len(postcodes))
	for _, postcode := range postcodes {
		if u.normalise {
			postcode = normalisePostcode(postcode)
		}
		id := documentID(record.TitleNumber, postcode)

		if record.IsDeleted {
			actions = append(actions, u.delete(id))
			continue
		}
		actions = append(actions, u.upsert(id, u.document(record, data.Address, postcode)))
	}
	return actions, nil
}

func (u *postcodeUpdater) GetMapping() index.Mapping {
	return u.mapping
}

func basePostcodeDocument(record models.TitleRegisterData, _ address, postcode string) map[string]any {
	return map[string]any{
		"title_number":   record.TitleNumber,
		"entry_datetime": datefmt.FormatMillis(record.LastModified),
		"postcode":       postcode,
	}
}

// newPostcodeV1 keeps postcodes as written.
func newPostcodeV1(base *Base) Updater {
	return &postcodeUpdater{
		Base:     base,
		document: basePostcodeDocument,
		mapping: index.Mapping{Properties: map[string]index.Field{
			"title_number":   {Type: index.FieldString, Index: index.IndexNo},
			"postcode":       {Type: index.FieldString, Index: index.IndexNotAnalyzed},
			"entry_datetime": {Type: index.FieldDate, Format: "date_time", Index: index.IndexNo},
		}},
	}
}

// newPostcodeV2 strips whitespace from postcodes.
func newPostcodeV2(base *Base) Updater {
	return &postcodeUpdater{
		Base:      base,
		normalise: true,
		document:  basePostcodeDocument,
		mapping: index.Mapping{Properties: map[string]index.Field{
			"title_number":   {Type: index.FieldString, Index: index.IndexNo},
			"postcode":       {Type: index.FieldString, Index: index.IndexNo},
			"entry_datetime": {Type: index.FieldDate, Format: "date_time", Index: index.IndexNo},
		}},
	}
}

// newPostcodeV3 adds the house number and the full address so results can be
// ordered within a postcode.
func newPostcodeV3(base *Base) Updater {
	return &postcodeUpdater{
		Base:      base,
		normalise: true,
		document: func(record models.TitleRegisterData, addr address, postcode string) map[string]any {
			doc := basePostcodeDocument(record, addr, postcode)
			doc["address_string"] = strings.ToLower(addr.AddressString)
			doc["house_number_or_first_number"] = nil
			if n := addr.houseNumberOrFirstNumber(); n != nil {
				doc["house_number_or_first_number"] = *n
			}
			return doc
		},
		mapping: index.Mapping{Properties: map[string]index.Field{
			"title_number":                 {Type: index.FieldString, Index: index.IndexNo},
			"postcode":                     {Type: index.FieldString, Index: index.IndexNotAnalyzed},
			"house_number_or_first_number": {Type: index.FieldInteger, Index: index.IndexNotAnalyzed},
			"address_string":               {Type: index.FieldString, Index: index.IndexNotAnalyzed},
			"entry_datetime":               {Type: index.FieldDate, Format: "date_time", Index: index.IndexNo},
		}},
	}
}
