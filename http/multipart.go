package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MultipartPart is one uploaded file of a multipart/form-data body. Its
// content lives in memory or, above the spool threshold, in a temp file.
type MultipartPart struct {
	Name        string
	Filename    string
	ContentType string
	Header      map[string]string

	content []byte
	path    string
	size    int64
}

func (part *MultipartPart) Size() int64 {
	return part.size
}

// Spooled reports whether the content was written to temp storage.
func (part *MultipartPart) Spooled() bool {
	return part.path != ""
}

// Path returns the temp file holding the content of a spooled part.
func (part *MultipartPart) Path() string {
	return part.path
}

func (part *MultipartPart) Bytes() ([]byte, error) {
	if part.path == "" {
		return part.content, nil
	}
	return os.ReadFile(part.path)
}

func (part *MultipartPart) Open() (io.ReadCloser, error) {
	if part.path == "" {
		return io.NopCloser(bytes.NewReader(part.content)), nil
	}
	return os.Open(part.path)
}

// MultipartForm holds the decoded parts of a multipart/form-data body.
type MultipartForm struct {
	values Values
	files  []*MultipartPart
}

// Values returns the simple text fields.
func (form *MultipartForm) Values() Values {
	if form == nil {
		return nil
	}
	return form.values
}

// File returns the first file part uploaded under name.
func (form *MultipartForm) File(name string) (*MultipartPart, bool) {
	if form == nil {
		return nil, false
	}
	for _, part := range form.files {
		if part.Name == name {
			return part, true
		}
	}
	return nil, false
}

func (form *MultipartForm) Files(name string) []*MultipartPart {
	if form == nil {
		return nil
	}
	var parts []*MultipartPart
	for _, part := range form.files {
		if part.Name == name {
			parts = append(parts, part)
		}
	}
	return parts
}

// Parts returns every file part in body order.
func (form *MultipartForm) Parts() []*MultipartPart {
	if form == nil {
		return nil
	}
	return form.files
}

// RemoveAll deletes the temp files of spooled parts.
func (form *MultipartForm) RemoveAll() error {
	if form == nil {
		return nil
	}

	var errs []error
	for _, part := range form.files {
		if part.path == "" {
			continue
		}
		if err := os.Remove(part.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		part.path = ""
	}
	return errors.Join(errs...)
}

// MultipartDecoder decodes multipart/form-data bodies.
type MultipartDecoder struct {
	// SpoolThreshold is the file part size above which content is written
	// to TempDir. Zero or less keeps every part in memory.
	SpoolThreshold int64
	TempDir        string
	Logger         *slog.Logger
}

func NewMultipartDecoder(logger *slog.Logger) MultipartDecoder {
	if logger == nil {
		logger = slog.Default()
	}

	return MultipartDecoder{
		SpoolThreshold: DefaultSpoolThreshold,
		TempDir:        os.TempDir(),
		Logger:         logger,
	}
}

// Decode splits body on the boundary marker ("--" + token). Malformed or
// unterminated parts are skipped; the parts decoded before them are kept.
func (decoder MultipartDecoder) Decode(body, boundary []byte) *MultipartForm {
	form := &MultipartForm{}
	if len(boundary) == 0 {
		return form
	}

	delimiter := append(bytes.Clone(crlf), boundary...)

	i := bytes.Index(body, boundary)
	if i < 0 {
		decoder.logger().Debug("multipart boundary not found")
		return form
	}

	for {
		i += len(boundary)
		if bytes.HasPrefix(body[i:], []byte("--")) {
			break // closing delimiter
		}

		// Transport padding
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if !bytes.HasPrefix(body[i:], crlf) {
			decoder.logger().Debug("multipart delimiter not followed by CRLF")
			break
		}
		i += len(crlf)

		end := bytes.Index(body[i:], delimiter)
		if end < 0 {
			decoder.logger().Debug("multipart part not terminated")
			break
		}

		decoder.decodePart(form, body[i:i+end])
		i += end + len(crlf)
	}

	return form
}

// DecodeFile decodes a multipart body that was spooled to path.
func (decoder MultipartDecoder) DecodeFile(path string, boundary []byte) (*MultipartForm, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decoder.Decode(body, boundary), nil
}

func (decoder MultipartDecoder) decodePart(form *MultipartForm, raw []byte) {
	headerBlock, content, found := bytes.Cut(raw, headerSeparator)
	if !found {
		decoder.logger().Debug("multipart part without header block")
		return
	}

	header := make(map[string]string)
	for _, line := range bytes.Split(headerBlock, crlf) {
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		header[strings.ToLower(string(bytes.TrimSpace(name)))] = string(bytes.TrimSpace(value))
	}

	params := parseHeaderParams(header["content-disposition"])
	name, found := params["name"]
	if !found || name == "" {
		decoder.logger().Debug("multipart part without name")
		return
	}

	filename, isFile := params["filename"]
	if !isFile {
		form.values = append(form.values, Pair{Key: name, Value: string(content)})
		return
	}

	part := &MultipartPart{
		Name:        name,
		Filename:    filepath.Base(filename),
		ContentType: header["content-type"],
		Header:      header,
		size:        int64(len(content)),
	}
	if filename == "" {
		part.Filename = ""
	}
	if part.ContentType == "" {
		part.ContentType = "application/octet-stream"
	}

	if decoder.SpoolThreshold > 0 && part.size > decoder.SpoolThreshold {
		path, err := decoder.spool(content)
		if err == nil {
			part.path = path
			form.files = append(form.files, part)
			return
		}
		decoder.logger().Warn("multipart spool failed, keeping part in memory", "name", name, "error", err)
	}

	part.content = bytes.Clone(content)
	form.files = append(form.files, part)
}

func (decoder MultipartDecoder) spool(content []byte) (string, error) {
	dir := decoder.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "upload-"+uuid.NewString())
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (decoder MultipartDecoder) logger() *slog.Logger {
	if decoder.Logger == nil {
		return slog.Default()
	}
	return decoder.Logger
}

// parseHeaderParams parses the ';' separated parameters of a header value
// such as Content-Disposition. Quoted values may contain ';' and escaped
// quotes. Keys are lower-cased.
func parseHeaderParams(value string) map[string]string {
	params := make(map[string]string)

	// Skip the disposition type
	i := strings.IndexByte(value, ';')
	if i < 0 {
		return params
	}
	value = value[i+1:]

	for {
		value = strings.TrimLeft(value, " \t;")
		if value == "" {
			return params
		}

		eq := strings.IndexByte(value, '=')
		if eq < 0 {
			return params
		}
		key := strings.ToLower(strings.TrimSpace(value[:eq]))
		value = strings.TrimLeft(value[eq+1:], " \t")

		var v string
		if strings.HasPrefix(value, "\"") {
			var b strings.Builder
			j := 1
			for ; j < len(value); j++ {
				c := value[j]
				if c == '\\' && j+1 < len(value) {
					j++
					b.WriteByte(value[j])
					continue
				}
				if c == '"' {
					break
				}
				b.WriteByte(c)
			}
			v = b.String()
			if j < len(value) {
				j++
			}
			value = value[j:]
		} else {
			end := strings.IndexByte(value, ';')
			if end < 0 {
				end = len(value)
			}
			v = strings.TrimSpace(value[:end])
			value = value[end:]
		}

		params[key] = v
	}
}
