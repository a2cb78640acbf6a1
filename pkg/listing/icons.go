package listing

import (
	"path/filepath"
	"strings"
)

const (
	dirIcon  = "icon-dir"
	fileIcon = "icon-file"
)

var iconByExtension = map[string]string{
	// Documents
	"pdf": "icon-pdf",
	"doc": "icon-doc", "docx": "icon-doc", "rtf": "icon-doc",
	"xls": "icon-xls", "xlsx": "icon-xls",
	"ppt": "icon-ppt", "pptx": "icon-ppt",
	"odt": "icon-odt", "ods": "icon-ods", "odp": "icon-odp",
	"csv": "icon-csv",

	// Code/Text
	"txt": "icon-text", "log": "icon-log", "md": "icon-markdown",
	"json": "icon-json", "xml": "icon-xml",
	"py": "icon-python", "js": "icon-javascript", "html": "icon-html", "css": "icon-css",
	"php": "icon-php", "c": "icon-c", "cpp": "icon-cpp", "java": "icon-java",
	"go": "icon-go", "rb": "icon-ruby",
	"sh": "icon-shell", "bat": "icon-shell", "ps1": "icon-shell",
	"yml": "icon-yaml", "yaml": "icon-yaml",
	"conf": "icon-config", "ini": "icon-config", "config": "icon-config",

	// Archives
	"zip": "icon-archive", "tar": "icon-archive", "gz": "icon-archive",
	"7z": "icon-archive", "rar": "icon-archive", "iso": "icon-archive",

	// Images
	"jpg": "icon-image", "jpeg": "icon-image", "png": "icon-image", "gif": "icon-image",
	"svg": "icon-image", "bmp": "icon-image", "webp": "icon-image",
	"psd": "icon-psd",

	// Audio/Video
	"mp3": "icon-audio", "wav": "icon-audio", "ogg": "icon-audio",
	"mp4": "icon-video", "avi": "icon-video", "mov": "icon-video", "mkv": "icon-video",

	// Network captures, keys, binaries
	"pcap": "icon-network", "cap": "icon-network", "pcapng": "icon-network",
	"key": "icon-key", "pem": "icon-key",
	"crt": "icon-cert", "cer": "icon-cert",
	"vpn": "icon-vpn", "ovpn": "icon-vpn",
	"db": "icon-database", "sqlite": "icon-database", "sql": "icon-database", "dump": "icon-database",
	"bin": "icon-binary", "exe": "icon-binary", "dll": "icon-binary", "elf": "icon-binary", "so": "icon-binary",
	"apk": "icon-android",
	"jar": "icon-java-archive",
}

// IconFor returns the icon class for an entry. Directories always get the
// directory icon; unknown or missing extensions get the generic file icon.
func IconFor(name string, isDir bool) string {
	if isDir {
		return dirIcon
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if icon, ok := iconByExtension[ext]; ok {
		return icon
	}
	return fileIcon
}
