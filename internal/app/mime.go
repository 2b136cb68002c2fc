package app

import (
	"log"
	"mime"
)

// Some minimal container images ship without /etc/mime.types, which
// leaves the stylesheet served as text/plain. Register the types the
// static handler serves before the first request.
func init() {
	registerStaticType(".css", "text/css; charset=utf-8")
	registerStaticType(".svg", "image/svg+xml")
}

func registerStaticType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: register mime type %s: %v", ext, err)
	}
}
