package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Court date export columns
const (
	colPersonID     = "ofndr_num"
	colCaseCode     = "(expression)"
	colLastName     = "lname"
	colDate         = "crt_dt"
	colTime         = "crt_tm"
	colRoom         = "crt_rm"
	colLocationCode = "crt_loc_cd"
	colLocationDesc = "crt_loc_desc"
)

// CourtDate is one row of a court date export
type CourtDate struct {
	Row      int
	PersonID string
	CaseCode string
	LastName string
	Date     string
	Time     string
	Room     string
}

// ReadCourtDates parses a .csv or .xlsx court date export
func ReadCourtDates(fileName string, r io.Reader) ([]CourtDate, error) {
	rows, err := readTable(fileName, r)
	if err != nil {
		return nil, err
	}
	records, err := mapRows(rows, colPersonID, colCaseCode, colLastName, colDate, colTime, colRoom)
	if err != nil {
		return nil, err
	}

	dates := make([]CourtDate, 0, len(records))
	for i, rec := range records {
		dates = append(dates, CourtDate{
			Row:      i + 2,
			PersonID: rec[colPersonID],
			CaseCode: rec[colCaseCode],
			LastName: rec[colLastName],
			Date:     rec[colDate],
			Time:     rec[colTime],
			Room:     rec[colRoom],
		})
	}
	return dates, nil
}

// ReadLocations parses a .csv or .xlsx court location table into code → description
func ReadLocations(fileName string, r io.Reader) (map[string]string, error) {
	rows, err := readTable(fileName, r)
	if err != nil {
		return nil, err
	}
	records, err := mapRows(rows, colLocationCode, colLocationDesc)
	if err != nil {
		return nil, err
	}

	locations := make(map[string]string, len(records))
	for _, rec := range records {
		if code := rec[colLocationCode]; code != "" {
			locations[code] = rec[colLocationDesc]
		}
	}
	return locations, nil
}

func readTable(fileName string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", "":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		return reader.ReadAll()
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", fileName)
		}
		return f.GetRows(sheets[0])
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileName)
	}
}

// mapRows keys each data row by header name. Missing required columns fail the read.
func mapRows(rows [][]string, required ...string) ([]map[string]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(required))
		for _, name := range required {
			if i := index[name]; i < len(row) {
				rec[name] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
