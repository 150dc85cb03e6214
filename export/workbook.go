package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mbolis/workation/model"
)

const (
	maxSheetName = 31
	timeLayout   = "2006-01-02 15:04:05"
)

type group struct {
	schema    model.Schema
	fallback  bool
	responses []model.Response
}

// Workbook writes one sheet per schema version, in order of first
// appearance in rs. Each sheet lists its responses under the question
// titles of that version; answers no question covers get a column of their
// own at the end.
func Workbook(ctx context.Context, rs []model.Response, res *Resolver) (*excelize.File, error) {
	var groups []*group
	byKey := map[string]*group{}
	for _, r := range rs {
		schema, fallback := res.Resolve(ctx, r)
		key := schema.ID + "|" + schema.Version
		g, ok := byKey[key]
		if !ok {
			g = &group{schema: schema, fallback: fallback}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.responses = append(g.responses, r)
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	if len(groups) == 0 {
		if err := f.SetSheetRow("Sheet1", "A1", &[]any{"Response id", "Submitted at"}); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}

	used := map[string]bool{}
	for i, g := range groups {
		name := sheetName(g.schema, g.fallback, used)
		if i == 0 {
			err = f.SetSheetName("Sheet1", name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err == nil {
			err = writeSheet(f, name, g, bold)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, g *group, headerStyle int) error {
	cols := Columns(g.schema)
	extra := extraKeys(cols, g.responses)

	header := []any{"Response id", "Submitted at"}
	for _, c := range cols {
		header = append(header, c.Header)
	}
	for _, k := range extra {
		header = append(header, k)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, r := range g.responses {
		row := make([]any, 0, len(header))
		submitted := ""
		if !r.SubmittedAt.IsZero() {
			submitted = r.SubmittedAt.UTC().Format(timeLayout)
		}
		row = append(row, r.ID, submitted)
		for _, c := range cols {
			row = append(row, c.Value(r.Answers[c.Key]))
		}
		for _, k := range extra {
			row = append(row, Column{}.Value(r.Answers[k]))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 24); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// sheetName derives a unique, valid sheet name from the schema version.
func sheetName(s model.Schema, fallback bool, used map[string]bool) string {
	base := s.Version
	if fallback {
		base = "fallback"
	}
	if base == "" {
		base = s.ID
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, base)
	base = strings.Trim(base, "'")
	if base == "" {
		base = "responses"
	}
	base = truncate(base, maxSheetName)

	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
