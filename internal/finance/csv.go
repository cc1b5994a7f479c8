package finance

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// CSVHeader перечисляет колонки выгрузки транзакций.
var CSVHeader = []string{"Date", "Amount", "Method", "Status", "Reference"}

// WriteCSV выгружает платежи в CSV. Каждое поле заключается в кавычки,
// кавычки внутри поля удваиваются.
func WriteCSV(w io.Writer, payments []model.Payment) error {
	bw := bufio.NewWriter(w)

	writeRow(bw, CSVHeader)
	for _, p := range payments {
		writeRow(bw, []string{
			p.CreatedAt.UTC().Format(time.DateOnly),
			p.Value().String(),
			p.Method,
			string(p.Status),
			p.Reference,
		})
	}

	return bw.Flush()
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}

// ExportFilename возвращает имя файла выгрузки вида <report>-YYYY-MM-DD.csv.
func ExportFilename(report string, now time.Time) string {
	return report + "-" + now.Format(time.DateOnly) + ".csv"
}
