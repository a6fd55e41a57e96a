package job

import (
	"time"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// Job represents a label render job
type Job struct {
	ID        string
	PackageID string
	InputPath string
	Table     TableConfig
	Mapping   MappingConfig
	Label     LabelConfig
	Delivery  DeliveryConfig
	Upload    bool
	Status    JobStatus
	FileType  string

	StartedAt    *time.Time
	FinishedAt   *time.Time
	RowsRead     int64
	RowsRendered int64
	RowsFailed   int64
	ArchivePath  string
	ArchiveSize  int64
	ArchiveKey   string
	ReportPath   string
	ReportSent   bool
	LastError    string
}

// TableConfig describes how the input table is read
type TableConfig struct {
	Format    string `json:"format" toml:"format"`       // "csv", "xml" or empty to detect from the file extension
	Encoding  string `json:"encoding" toml:"encoding"`   // "utf-8" or "windows-1251"
	Delimiter string `json:"delimiter" toml:"delimiter"` // ";" or ","
}

// MappingConfig maps label fields to source columns
type MappingConfig struct {
	IdentifierField string   `json:"identifierField" toml:"identifier_field"`
	BarcodeField    string   `json:"barcodeField" toml:"barcode_field"`
	SKUField        string   `json:"skuField,omitempty" toml:"sku_field"`
	TitleField      string   `json:"titleField,omitempty" toml:"title_field"`
	PriceField      string   `json:"priceField,omitempty" toml:"price_field"`
	BrandField      string   `json:"brandField,omitempty" toml:"brand_field"`
	Required        []string `json:"required,omitempty" toml:"required"` // extra logical fields that must be non-empty
}

// LabelConfig describes the physical label and its layout
type LabelConfig struct {
	WidthMM               float64  `json:"widthMm" toml:"width_mm"`
	HeightMM              float64  `json:"heightMm" toml:"height_mm"`
	DPI                   int      `json:"dpi" toml:"dpi"`
	BarcodeHeightFraction float64  `json:"barcodeHeightFraction,omitempty" toml:"barcode_height_fraction"`
	MarginFraction        *float64 `json:"marginFraction,omitempty" toml:"margin_fraction"`      // nil selects the default, 0 is a valid margin
	QuietZoneModules      *int     `json:"quietZoneModules,omitempty" toml:"quiet_zone_modules"` // nil selects the default
	TitleFontFraction     float64  `json:"titleFontFraction,omitempty" toml:"title_font_fraction"`
	TextFontFraction      float64  `json:"textFontFraction,omitempty" toml:"text_font_fraction"`
	CaptionFontFraction   float64  `json:"captionFontFraction,omitempty" toml:"caption_font_fraction"`
	TextAlign             string   `json:"textAlign,omitempty" toml:"text_align"`
	Background            string   `json:"background,omitempty" toml:"background"`
	Foreground            string   `json:"foreground,omitempty" toml:"foreground"`
}

// DeliveryConfig represents report delivery settings
type DeliveryConfig struct {
	Endpoint       string `json:"endpoint"`
	Gzip           bool   `json:"gzip"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
	BackoffMs      int    `json:"backoffMs"`
	BackoffMaxMs   int    `json:"backoffMaxMs"`
}

// IsFinished reports whether the status is terminal
func (s JobStatus) IsFinished() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}
