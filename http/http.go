package http

const (
	MaxRequestSize        = 2 * 1024 * 1024 // 2MB
	MaxHeaderSize         = 64 * 1024       // 64kB
	DefaultReadBufferSize = 4096            // 4kB
	DefaultSpoolThreshold = 256 * 1024      // 256kB
)

var (
	protocolHttp11        = []byte("HTTP/1.1")
	headerSeparator       = []byte("\r\n\r\n")
	crlf                  = []byte("\r\n")
	headerContentLength   = []byte("content-length")
	headerContentType     = []byte("content-type")
	headerCookie          = []byte("cookie")
	headerConnection      = []byte("connection")
	headerKeepAlive       = []byte("keep-alive")
	headerClose           = []byte("close")
	mimeMultipartFormData = []byte("multipart/form-data")
	mimeJson              = []byte("application/json")
)
