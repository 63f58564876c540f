package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
)

// projectName labels every snapshot so mixed data directories stay
// attributable.
const projectName = "Data Detective Valencia"

// Meta is the _metadata block every raw snapshot carries. Counter
// fields only appear for the sources they apply to.
type Meta struct {
	Project        string `json:"proyecto"`
	CaptureTime    string `json:"timestamp_captura"`
	CaptureTimeUTC string `json:"timestamp_utc"`
	Source         string `json:"fuente"`
	URL            string `json:"url,omitempty"`
	State          string `json:"estado_captura"`
	RunID          string `json:"run_id,omitempty"`
	Requested      int    `json:"solicitados,omitempty"`
	Succeeded      int    `json:"exitosos,omitempty"`
	Failed         int    `json:"fallidos,omitempty"`
	Records        int    `json:"total_registros,omitempty"`
	RawBytes       int    `json:"bytes_descargados,omitempty"`
}

// NewMeta stamps a metadata block with the capture time in local time
// and UTC, matching what the verification tooling expects to find.
func NewMeta(source, url, state string, capturedAt time.Time) Meta {
	return Meta{
		Project:        projectName,
		CaptureTime:    capturedAt.Format("2006-01-02T15:04:05"),
		CaptureTimeUTC: capturedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Source:         source,
		URL:            url,
		State:          state,
	}
}

// SnapshotWriter writes timestamped raw captures under a fixed layout:
//
//	<root>/dinamicos/<category>/<prefix>_YYYYMMDD_HHMMSS.json
//
// With compression enabled files gain a .sz suffix and hold a snappy
// block instead of plain bytes.
type SnapshotWriter struct {
	Root     string
	Compress bool
}

// WriteJSON marshals payload with two-space indentation and returns
// the path written.
func (w *SnapshotWriter) WriteJSON(category, prefix string, capturedAt time.Time, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s snapshot: %w", prefix, err)
	}
	return w.write(category, prefix, "json", capturedAt, data)
}

// WriteRaw keeps a verbatim payload, such as the DATEX II XML, next to
// the parsed snapshot.
func (w *SnapshotWriter) WriteRaw(category, prefix, ext string, capturedAt time.Time, data []byte) (string, error) {
	return w.write(category, prefix, ext, capturedAt, data)
}

func (w *SnapshotWriter) write(category, prefix, ext string, capturedAt time.Time, data []byte) (string, error) {
	dir := filepath.Join(w.Root, "dinamicos", category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", prefix, capturedAt.Format("20060102_150405"), ext)
	if w.Compress {
		name += ".sz"
		data = snappy.Encode(nil, data)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// ReadSnapshot loads a snapshot file, transparently decoding the
// snappy framing of compressed captures.
func ReadSnapshot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".sz") {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot %s: %w", filepath.Base(path), err)
		}
		return decoded, nil
	}
	return data, nil
}
