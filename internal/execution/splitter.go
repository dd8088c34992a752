package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// ErrTelemetry reports a report line that is not valid JSON.
var ErrTelemetry = errors.New("invalid_telemetry")

// Piece is one unit of program output after splitting: plain output, a
// parsed telemetry record, or a telemetry parse error.
type Piece struct {
	Output    string
	Telemetry *models.Telemetry
	Err       error
}

// Splitter separates report lines from program output. Chunks arrive at
// arbitrary boundaries, so a marker or a UTF-8 sequence cut at the end of
// a chunk is held back until the next one.
type Splitter struct {
	pending  string
	inReport bool
	report   strings.Builder
}

// Feed consumes a chunk and returns the pieces it completes, in order.
func (s *Splitter) Feed(chunk string) []Piece {
	data := s.pending + chunk
	s.pending = ""

	var pieces []Piece
	for len(data) > 0 {
		if s.inReport {
			i := strings.IndexByte(data, '\n')
			if i < 0 {
				s.report.WriteString(data)
				return pieces
			}
			s.report.WriteString(data[:i])
			pieces = append(pieces, s.finishReport())
			data = data[i+1:]
			continue
		}

		if i := strings.Index(data, models.TelemetryMarker); i >= 0 {
			if i > 0 {
				pieces = append(pieces, Piece{Output: data[:i]})
			}
			s.inReport = true
			data = data[i+len(models.TelemetryMarker):]
			continue
		}

		keep := heldBack(data)
		if out := data[:len(data)-keep]; out != "" {
			pieces = append(pieces, Piece{Output: out})
		}
		s.pending = data[len(data)-keep:]
		return pieces
	}
	return pieces
}

// Flush returns whatever is still held back. A report without its
// terminating newline is parsed as is.
func (s *Splitter) Flush() []Piece {
	var pieces []Piece
	if s.inReport {
		pieces = append(pieces, s.finishReport())
	}
	if s.pending != "" {
		pieces = append(pieces, Piece{Output: s.pending})
		s.pending = ""
	}
	return pieces
}

func (s *Splitter) finishReport() Piece {
	raw := strings.TrimSpace(s.report.String())
	s.report.Reset()
	s.inReport = false

	var t models.Telemetry
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Piece{Err: fmt.Errorf("%w: %v", ErrTelemetry, err)}
	}
	if t.Variables == nil {
		t.Variables = map[string]models.VariableReport{}
	}
	if t.Devices == nil {
		t.Devices = map[string]models.DeviceReport{}
	}
	return Piece{Telemetry: &t}
}

// heldBack returns how many trailing bytes of data may be the start of a
// marker or of an unfinished UTF-8 sequence.
func heldBack(data string) int {
	marker := models.TelemetryMarker
	for k := min(len(marker)-1, len(data)); k > 0; k-- {
		if strings.HasSuffix(data, marker[:k]) {
			return k
		}
	}
	for k := 1; k <= utf8.UTFMax-1 && k <= len(data); k++ {
		if utf8.RuneStart(data[len(data)-k]) {
			if !utf8.FullRuneInString(data[len(data)-k:]) {
				return k
			}
			break
		}
	}
	return 0
}
