package domain

import dErrors "holdright/pkg/domain-errors"

// DataCategory labels a class of data a hold places under preservation.
// The engine does not interpret hold content; categories are scope metadata
// validated at creation so reports stay queryable.
type DataCategory string

const (
	DataCategoryDocuments   DataCategory = "documents"
	DataCategoryEmail       DataCategory = "email"
	DataCategoryChat        DataCategory = "chat"
	DataCategoryFinancial   DataCategory = "financial"
	DataCategoryDeviceImage DataCategory = "device_image"
	DataCategoryDatabase    DataCategory = "database"
	DataCategoryOther       DataCategory = "other"
)

var validDataCategories = map[DataCategory]bool{
	DataCategoryDocuments:   true,
	DataCategoryEmail:       true,
	DataCategoryChat:        true,
	DataCategoryFinancial:   true,
	DataCategoryDeviceImage: true,
	DataCategoryDatabase:    true,
	DataCategoryOther:       true,
}

// ParseDataCategory constructs a DataCategory from external input.
func ParseDataCategory(s string) (DataCategory, error) {
	c := DataCategory(s)
	if !validDataCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data category: "+s)
	}
	return c, nil
}

// IsValid checks membership in the closed category set.
func (c DataCategory) IsValid() bool { return validDataCategories[c] }
