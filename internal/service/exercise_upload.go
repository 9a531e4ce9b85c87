package service

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// readUpload loads an uploaded file into memory, enforcing maxSize.
func readUpload(file *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if file == nil {
		return nil, ErrFileRequired
	}
	if file.Size > maxSize {
		return nil, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxSize+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > maxSize {
		return nil, ErrUploadTooLarge
	}

	return buf.Bytes(), nil
}

// scanArchive bounds the uncompressed size of zip-based documents (.docx).
func scanArchive(payload []byte, maxSize int64) error {
	if len(payload) < 4 || !bytes.HasPrefix(payload, []byte("PK\x03\x04")) {
		return nil
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}

	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
		if total > uint64(maxSize*20) {
			return fmt.Errorf("archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("exercise-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".txt"
	}
	return base + ext
}

// titleFromFileName turns "unit-3_the tides.docx" into "Unit 3 The Tides".
func titleFromFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
