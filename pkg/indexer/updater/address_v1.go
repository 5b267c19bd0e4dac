package updater

import (
	"github.com/hashicorp-forge/indexsync/pkg/datefmt"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/models"
)

// addressV1 indexes one document per title, keyed by its address.
type addressV1 struct {
	*Base
}

func newAddressV1(base *Base) Updater {
	return &addressV1{Base: base}
}

func (u *addressV1) PrepareIndexActions(record models.TitleRegisterData) ([]index.Action, error) {
	data, err := decodeRegisterData(record)
	if err != nil {
		return nil, err
	}

	addressString := stripPunctuation(data.Address.AddressString)
	if addressString == "" {
		return nil, nil
	}
	id := documentID(record.TitleNumber, addressString)

	if record.IsDeleted {
		return []index.Action{u.delete(id)}, nil
	}

	return []index.Action{u.upsert(id, map[string]any{
		"title_number":   record.TitleNumber,
		"entry_datetime": datefmt.FormatMillis(record.LastModified),
		"address_string": addressString,
	})}, nil
}

func (u *addressV1) GetMapping() index.Mapping {
	return index.Mapping{Properties: map[string]index.Field{
		"title_number":   {Type: index.FieldString, Index: index.IndexNo},
		"address_string": {Type: index.FieldString, Index: index.IndexAnalyzed},
		"entry_datetime": {Type: index.FieldDate, Format: "date_time", Index: index.IndexNo},
	}}
}
