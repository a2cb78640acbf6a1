package models

// DirectoryEntry represents one row of a directory listing
type DirectoryEntry struct {
	Name  string
	IsDir bool
	Size  int64
	Icon  string
}

// UploadedFile is a file extracted from a multipart upload body.
// Filename is the name the client sent and must not be trusted.
type UploadedFile struct {
	Filename string
	Content  []byte
}

// MetadataRecord maps a tag name to its value. Values are strings or JSON scalars.
type MetadataRecord map[string]interface{}
