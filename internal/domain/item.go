package domain

// Print size constants.
const (
	PrintSizeSmall = "small"
	PrintSizeLarge = "large"
)

// File type constants. Images are printed as photos, documents as flat pages.
const (
	FileTypeImage    = "image"
	FileTypeDocument = "document"
)

// Unit prices per print size, in the smallest currency unit.
var priceTable = map[string]int64{
	PrintSizeSmall: 200,
	PrintSizeLarge: 400,
}

// PriceFor returns the unit price for a print size, or 0 for an unknown size.
func PriceFor(size string) int64 {
	return priceTable[size]
}

// IsValidPrintSize checks if a size string is one of the supported sizes.
func IsValidPrintSize(size string) bool {
	_, ok := priceTable[size]
	return ok
}

// IsValidFileType checks if a file type string is supported.
func IsValidFileType(ft string) bool {
	return ft == FileTypeImage || ft == FileTypeDocument
}

// OrderItem represents one file to be printed.
type OrderItem struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id,omitempty"`
	FileName      string `json:"file_name"`
	FileType      string `json:"file_type"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	FileURL       string `json:"file_url,omitempty"`
	PrintSize     string `json:"print_size"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	LineTotal     int64  `json:"line_total"`
}
