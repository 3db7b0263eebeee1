package errorlog

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/VatsalSy/SyncGuard/internal/errors"
)

// ExportVersion is written to every JSON export.
const ExportVersion = "1.0"

// Export is the JSON document produced by Logger.Export.
type Export struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Errors     []ErrorContext `json:"errors"`
}

// CSVHeader lists the ExportAsCSV columns.
var CSVHeader = []string{"Timestamp", "Code", "Message", "Type", "Severity", "Component", "Function", "Recoverable"}

// Export serializes the full history, newest first.
func (l *Logger) Export() ([]byte, error) {
	doc := Export{
		Version:    ExportVersion,
		ExportedAt: l.now().UTC(),
		Errors:     l.GetHistory(0),
	}

	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal error export")
	}
	return data, nil
}

// ParseExport decodes a document produced by Export.
func ParseExport(data []byte) (*Export, error) {
	var doc Export
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, errors.Configuration("import_errors", "invalid export document: %v", err)
	}
	if doc.Version == "" {
		return nil, errors.Configuration("import_errors", "export document has no version")
	}
	return &doc, nil
}

// Import logs every entry of an export document, oldest first, so the
// resulting order matches the exported one. It returns the number of
// entries read.
func (l *Logger) Import(data []byte) (int, error) {
	doc, err := ParseExport(data)
	if err != nil {
		return 0, err
	}

	for i := len(doc.Errors) - 1; i >= 0; i-- {
		entry := doc.Errors[i]
		l.Log(&entry)
	}
	return len(doc.Errors), nil
}

// ExportAsCSV renders the history, newest first, with every field quoted.
func (l *Logger) ExportAsCSV() []byte {
	var buf bytes.Buffer
	writeCSVRow(&buf, CSVHeader)

	for _, e := range l.GetHistory(0) {
		var component, function string
		if e.Location != nil {
			component = e.Location.Component
			function = e.Location.Function
		}
		writeCSVRow(&buf, []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Code,
			e.Message,
			string(e.Type),
			string(e.Severity),
			component,
			function,
			strconv.FormatBool(e.Recoverable),
		})
	}
	return buf.Bytes()
}

func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}
