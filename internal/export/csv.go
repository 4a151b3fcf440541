package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Quoting selects how cells are quoted.
type Quoting int

const (
	// QuoteRFC4180 wraps every cell in double quotes and doubles embedded
	// quotes. Header names are quoted only when they need it.
	QuoteRFC4180 Quoting = iota
	// QuoteLegacy wraps every cell in double quotes without escaping, which
	// breaks on values containing quotes. Kept for byte-compatible output
	// with existing consumers.
	QuoteLegacy
)

func (q Quoting) cell(s string) string {
	if q == QuoteLegacy {
		return `"` + s + `"`
	}

	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (q Quoting) header(s string) string {
	if q == QuoteLegacy || !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}

	return q.cell(s)
}

type encoder struct {
	w       *bufio.Writer
	quoting Quoting
	columns []string
}

func (e *encoder) writeHeader() error {
	for i, col := range e.columns {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}

		if _, err := e.w.WriteString(e.quoting.header(col)); err != nil {
			return err
		}
	}

	return e.w.WriteByte('\n')
}

// writeRow renders row with the encoder's fixed columns; absent columns are
// empty and columns unknown to the header are dropped.
func (e *encoder) writeRow(row Row) error {
	for i, col := range e.columns {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}

		v, _ := row.Get(col)
		if _, err := e.w.WriteString(e.quoting.cell(FormatValue(v))); err != nil {
			return err
		}
	}

	return e.w.WriteByte('\n')
}

// FormatValue renders a scalar as cell text. Nil renders as the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(x).String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
