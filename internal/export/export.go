// Package export renders the reconciled submissions as a spreadsheet with
// one row per accepted (challenge, language) pair.
package export

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"hrexport/internal/scrapers/hackerrank"
	"hrexport/internal/submission"
	"hrexport/lib/fsutil"
	"hrexport/lib/textutil"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

const SheetName = "hackerrank submissions"

var header = []string{
	"Challenge (link - in Excel click 'enable editing' if not visible)",
	"Time",
	"Status",
	"Points",
	"Language",
	"Code",
}

var columnWidths = []float64{35, 13, 10, 6, 10, 150}

type Row struct {
	Key      submission.Key
	Url      string
	Name     string
	Time     string
	Status   string
	Points   string
	Language string
	Code     []string
}

// Rows picks the accepted complete records and orders them by challenge name,
// ignoring case.
func Rows(records submission.Set, baseUrl string) []Row {
	rows := []Row{}
	for key, record := range records {
		complete, ok := record.Complete()
		if !ok || !submission.IsAccepted(complete.Status) {
			continue
		}
		url := complete.ChallengeUrl
		if url == "" {
			url = hackerrank.ProblemUrl(baseUrl, key.Challenge)
		}
		name := complete.Name
		if name == "" {
			name = key.Challenge
		}
		rows = append(rows, Row{
			Key:      key,
			Url:      url,
			Name:     name,
			Time:     complete.Time,
			Status:   complete.Status,
			Points:   complete.Points,
			Language: key.Language,
			Code:     complete.Code,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := textutil.FoldKey(rows[i].Name), textutil.FoldKey(rows[j].Name)
		if a != b {
			return a < b
		}
		if rows[i].Language != rows[j].Language {
			return rows[i].Language < rows[j].Language
		}
		return rows[i].Key.Challenge < rows[j].Key.Challenge
	})
	return rows
}

func hyperlink(url, text string) string {
	return fmt.Sprintf(
		`HYPERLINK("%s","%s")`,
		strings.ReplaceAll(url, `"`, "%22"),
		strings.ReplaceAll(text, `"`, "'"),
	)
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		panic(err)
	}
	return name
}

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	err := f.SetSheetName("Sheet1", SheetName)
	if err != nil {
		return err
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		err = f.SetColWidth(SheetName, col, col, width)
		if err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	codeStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Courier New", Bold: true},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    border,
	})
	if err != nil {
		return err
	}
	topStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top"},
	})
	if err != nil {
		return err
	}

	for i, title := range header {
		err = f.SetCellStr(SheetName, cell(i+1, 1), title)
		if err != nil {
			return err
		}
	}
	err = f.SetCellStyle(SheetName, cell(1, 1), cell(len(header), 1), headerStyle)
	if err != nil {
		return err
	}

	for i, row := range rows {
		n := i + 2
		err = f.SetCellFormula(SheetName, cell(1, n), hyperlink(row.Url, row.Name))
		if err != nil {
			return err
		}
		values := []string{row.Time, row.Status, row.Points, row.Language, strings.Join(row.Code, "\n")}
		for j, v := range values {
			err = f.SetCellStr(SheetName, cell(j+2, n), v)
			if err != nil {
				return err
			}
		}
		err = f.SetCellStyle(SheetName, cell(1, n), cell(5, n), topStyle)
		if err != nil {
			return err
		}
		err = f.SetCellStyle(SheetName, cell(6, n), cell(6, n), codeStyle)
		if err != nil {
			return err
		}
	}

	return f.Write(w)
}

// WriteFile renders the rows and replaces the file at `path` in one step.
func WriteFile(fs afero.Fs, path string, rows []Row) error {
	buf := bytes.NewBuffer(nil)
	err := WriteXLSX(buf, rows)
	if err != nil {
		return fmt.Errorf("render spreadsheet: %w", err)
	}
	err = fsutil.WriteFileAtomic(fs, path, buf.Bytes())
	if err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	return nil
}
