package updater

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/hashicorp-forge/indexsync/pkg/models"
)

var (
	postcodeRegex   = regexp.MustCompile(`[A-Z]{1,2}[0-9R][0-9A-Z]? [0-9][A-Z]{2}`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	numberRegex     = regexp.MustCompile(`\d+`)
	punctuation     = strings.NewReplacer(",", "", "(", "", ")", "")
)

// registerData is the part of the register payload the updaters read.
type registerData struct {
	Address address `mapstructure:"address"`
}

type address struct {
	AddressString string `mapstructure:"address_string"`
	Postcode      string `mapstructure:"postcode"`
	HouseNo       string `mapstructure:"house_no"`
}

// decodeRegisterData decodes the record payload. Numbers in string fields
// (e.g. a numeric house_no) are accepted.
func decodeRegisterData(record models.TitleRegisterData) (registerData, error) {
	var out registerData

	obj, err := record.RegisterData.Object()
	if err != nil {
		return out, fmt.Errorf("%w %s: %w", ErrTransform, record.TitleNumber, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("%w %s: %w", ErrTransform, record.TitleNumber, err)
	}
	if err := decoder.Decode(obj); err != nil {
		return out, fmt.Errorf("%w %s: %w", ErrTransform, record.TitleNumber, err)
	}
	return out, nil
}

// documentID combines a title number with a secondary value into an index
// id: uppercased, whitespace runs collapsed to underscores.
func documentID(titleNumber, secondary string) string {
	id := strings.ToUpper(strings.TrimSpace(titleNumber + "-" + secondary))
	return whitespaceRegex.ReplaceAllString(id, "_")
}

// stripPunctuation removes characters that carry no meaning in an address
// used as an id.
func stripPunctuation(s string) string {
	return strings.TrimSpace(punctuation.Replace(s))
}

// postcodes returns the structured postcode when present, otherwise every
// postcode found in the address string.
func (a address) postcodes() []string {
	if pc := strings.TrimSpace(a.Postcode); pc != "" {
		return []string{pc}
	}
	if a.AddressString == "" {
		return nil
	}
	return postcodeRegex.FindAllString(a.AddressString, -1)
}

func normalisePostcode(postcode string) string {
	return whitespaceRegex.ReplaceAllString(postcode, "")
}

// houseNumberOrFirstNumber returns house_no when it is a bare integer,
// otherwise the first integer in the address string that is not part of a
// postcode. It returns nil when there is none.
func (a address) houseNumberOrFirstNumber() *int {
	if houseNo := strings.TrimSpace(a.HouseNo); houseNo != "" && isDigits(houseNo) {
		if n, err := strconv.Atoi(houseNo); err == nil {
			return &n
		}
	}

	withoutPostcodes := postcodeRegex.ReplaceAllString(a.AddressString, "")
	match := numberRegex.FindString(withoutPostcodes)
	if match == "" {
		return nil
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
