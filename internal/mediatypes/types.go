package mediatypes

import (
	"path/filepath"
	"strings"
)

// ImageExtensions maps file extensions to whether they are importable
// photo formats. RAW formats are indexed and fingerprinted like any other
// file; rendering them is the decode collaborator's problem.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
	".dng":  true,
	".raw":  true,
	".cr2":  true,
	".nef":  true,
	".arw":  true,
	".raf":  true,
}

// RawExtensions marks the subset of ImageExtensions that are camera RAW
// formats.
var RawExtensions = map[string]bool{
	".dng": true,
	".raw": true,
	".cr2": true,
	".nef": true,
	".arw": true,
	".raf": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".dng":  "image/x-adobe-dng",
	".raw":  "image/x-raw",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
	".raf":  "image/x-fuji-raf",
}

// IsSupported returns true if the file path has a supported photo extension.
func IsSupported(path string) bool {
	return ImageExtensions[Ext(path)]
}

// IsRaw returns true if the file path has a camera RAW extension.
func IsRaw(path string) bool {
	return RawExtensions[Ext(path)]
}

// Ext returns the lowercased extension of path, including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// GetMimeType returns the MIME type for a given file path.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(path string) string {
	if mime, ok := MimeTypes[Ext(path)]; ok {
		return mime
	}
	return "application/octet-stream"
}
