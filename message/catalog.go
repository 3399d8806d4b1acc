package message

// CatalogListRequest lists catalog files in a directory.
type CatalogListRequest struct {
	Directory string `json:"directory"`
}

// CatalogListResponse lists catalog files and subdirectories.
type CatalogListResponse struct {
	Ack
	Directory      string     `json:"directory"`
	Files          []FileInfo `json:"files"`
	Subdirectories []string   `json:"subdirectories,omitempty"`
}

// CatalogFileInfoRequest asks for column metadata of one catalog file.
type CatalogFileInfoRequest struct {
	Directory string `json:"directory"`
	Name      string `json:"name"`
}

// CatalogFileInfoResponse describes a catalog file's columns.
type CatalogFileInfoResponse struct {
	Ack
	FileInfo FileInfo        `json:"file_info"`
	Headers  []CatalogHeader `json:"headers,omitempty"`
	DataSize int64           `json:"data_size,omitempty"`
}

// CatalogHeader describes one catalog column.
type CatalogHeader struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	ColumnIndex int32  `json:"column_index"`
	Units       string `json:"units,omitempty"`
	Description string `json:"description,omitempty"`
}

// OpenCatalogFile opens a catalog under a client-chosen id and returns a
// preview of the first PreviewDataSize rows.
type OpenCatalogFile struct {
	Directory       string `json:"directory"`
	Name            string `json:"name"`
	FileID          int32  `json:"file_id"`
	PreviewDataSize int32  `json:"preview_data_size,omitempty"`
}

// OpenCatalogFileAck confirms the open with column metadata and preview
// rows.
type OpenCatalogFileAck struct {
	Ack
	FileID   int32           `json:"file_id"`
	FileInfo FileInfo        `json:"file_info"`
	Headers  []CatalogHeader `json:"headers,omitempty"`
	DataSize int64           `json:"data_size,omitempty"`
	Columns  map[string][]string `json:"preview_data,omitempty"`
}

// CloseCatalogFile closes an open catalog. No ack.
type CloseCatalogFile struct {
	FileID int32 `json:"file_id"`
}

// SetCatalogFilterRequest streams filtered catalog rows back in chunks
// through CatalogFilterResponse messages.
type SetCatalogFilterRequest struct {
	FileID          int32                `json:"file_id"`
	ColumnIndices   []int32              `json:"column_indices,omitempty"`
	FilterConfigs   []CatalogFilterConfig `json:"filter_configs,omitempty"`
	SubsetDataSize  int32                `json:"subset_data_size,omitempty"`
	SubsetStartIndex int32               `json:"subset_start_index,omitempty"`
}

// CatalogFilterConfig is one column predicate.
type CatalogFilterConfig struct {
	ColumnName string  `json:"column_name"`
	Comparison string  `json:"comparison_operator"` // "==", "!=", "<", ">", "<=", ">=", "range"
	Value      float64 `json:"value"`
	SecondaryValue float64 `json:"secondary_value,omitempty"`
	SubString  string  `json:"sub_string,omitempty"`
}

// CatalogFilterResponse streams one chunk of filtered rows.
type CatalogFilterResponse struct {
	FileID       int32               `json:"file_id"`
	Columns      map[string][]string `json:"columns,omitempty"`
	SubsetDataSize int32             `json:"subset_data_size"`
	SubsetEndIndex int32             `json:"subset_end_index"`
	FilterDataSize int32             `json:"filter_data_size"`
	RequestEndIndex int32            `json:"request_end_index"`
	Progress     float64             `json:"progress"`
}
