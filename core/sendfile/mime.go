package sendfile

import "path"

// ContentType maps a file name to its Content-Type by extension.
// Unknown extensions are served as text/plain.
func ContentType(name string) string {
	switch path.Ext(name) {
	case ".html":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".png":
		return "image/png"
	case ".jpg":
		return "image/jpeg"
	default:
		return "text/plain"
	}
}
