package lfapi

import (
	"encoding/json"
	"fmt"
)

// Entry classification constants as the listing service reports them.
// Documents and folders share targetType 0 and are told apart by type;
// anything else (the service also has "Shortcut" entries) is anomalous
// and must not be crawled.
const (
	TargetTypeEntry = 0
	TypeDocument    = -1
	TypeFolder      = 0
)

// Entry is one row of a folder listing. The data array mirrors the
// listing grid columns; index 10 carries the remote last-modified
// timestamp in the vendor's M/D/YYYY h:mm:ss AM/PM encoding.
type Entry struct {
	EntryID    int64             `json:"entryId"`
	Name       string            `json:"name"`
	ParentID   int64             `json:"parentId"`
	TargetType int               `json:"targetType"`
	Type       int               `json:"type"`
	Data       []json.RawMessage `json:"data"`
}

// ModifiedFieldIndex is the data column holding the last-modified timestamp.
const ModifiedFieldIndex = 10

// DataString returns the data column at index i as a string.
// Missing or non-string columns are data errors, not defaults.
func (e *Entry) DataString(i int) (string, error) {
	if i < 0 || i >= len(e.Data) {
		return "", fmt.Errorf("entry %d: data index %d out of range (len %d)", e.EntryID, i, len(e.Data))
	}
	var s string
	if err := json.Unmarshal(e.Data[i], &s); err != nil {
		return "", fmt.Errorf("entry %d: data index %d is not a string: %w", e.EntryID, i, err)
	}
	return s, nil
}

// IsDocument reports whether the entry is a plain document.
func (e *Entry) IsDocument() bool {
	return e.TargetType == TargetTypeEntry && e.Type == TypeDocument
}

// IsFolder reports whether the entry is a subfolder.
func (e *Entry) IsFolder() bool {
	return e.TargetType == TargetTypeEntry && e.Type == TypeFolder
}

// ListingPage is one window of a folder listing.
type ListingPage struct {
	Name         string   `json:"name"`
	FolderID     int64    `json:"folderId"`
	Path         string   `json:"path"`
	ParentID     int64    `json:"parentId"`
	TotalEntries int      `json:"totalEntries"`
	Results      []*Entry `json:"results"`
	Failed       bool     `json:"failed"`
	ErrMsg       string   `json:"errMsg"`
}

// FieldInfo is a metadata template field with its values.
type FieldInfo struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
	IsMvfg bool     `json:"isMvfg"`
}

// DocumentMetadataBody is the nested metadata block of a metadata response.
type DocumentMetadataBody struct {
	TemplateName string      `json:"templateName"`
	Modified     string      `json:"modified"`
	Created      string      `json:"created"`
	Path         string      `json:"path"`
	FInfo        []FieldInfo `json:"fInfo"`
	Err          *string     `json:"err"`
}

// DocumentMetadata is the response of GetBasicDocumentInfo.
type DocumentMetadata struct {
	Name       string               `json:"name"`
	ID         int64                `json:"id"`
	Metadata   DocumentMetadataBody `json:"metadata"`
	PageCount  int                  `json:"pageCount"`
	ParentID   int64                `json:"parentId"`
	TargetType int                  `json:"targetType"`
}

// Field returns the first value of the template field with exactly the
// given name. Absence of an expected field is a data error.
func (m *DocumentMetadata) Field(name string) (string, error) {
	for _, f := range m.Metadata.FInfo {
		if f.Name == name {
			if len(f.Values) == 0 {
				return "", nil
			}
			return f.Values[0], nil
		}
	}
	return "", fmt.Errorf("document %d: metadata field %q not present", m.ID, name)
}

// ExportStatus is the bulk export status body. errorMessage arrives as
// null, a bool, or a string depending on server mood, hence FlexString.
type ExportStatus struct {
	Finished     bool       `json:"finished"`
	ErrorMessage FlexString `json:"errorMessage"`
	Token        string     `json:"token"`
	Completion   int        `json:"completion"`
}

// SingleExportStatus is the PDFTransition status body (no data envelope).
type SingleExportStatus struct {
	ErrMsg     FlexString `json:"errMsg"`
	Success    bool       `json:"success"`
	Finished   bool       `json:"finished"`
	Completion int        `json:"completion"`
}

// FlexString decodes a JSON value that may be a string, bool or null
// into a string ("" for null/false, "true" for true).
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null", "false":
		*f = ""
		return nil
	case "true":
		*f = "true"
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(s)
	return nil
}

func (f FlexString) String() string { return string(f) }
