package grading

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/xuri/excelize/v2"
)

// ErrEmptyKeyFile is returned when an uploaded key file has no data rows.
var ErrEmptyKeyFile = errors.New("answer key file is empty")

// ParseAnswerKeyCSV reads an answer key from CSV content with a header row
// followed by "question_number,choice" rows. Every choice is validated
// against the exam's choice set; one bad row rejects the whole file so a
// partially-wrong key can never be activated.
func ParseAnswerKeyCSV(r io.Reader, total int, choiceSet string) (model.AnswerKey, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyKeyFile
	}

	// Skip the header row.
	return buildAnswerKey(records[1:], total, choiceSet)
}

// ParseAnswerKeyXLSX reads an answer key from the first sheet of an XLSX
// workbook, same column layout as the CSV form.
func ParseAnswerKeyXLSX(data []byte, total int, choiceSet string) (model.AnswerKey, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyKeyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyKeyFile
	}

	return buildAnswerKey(rows[1:], total, choiceSet)
}

func buildAnswerKey(rows [][]string, total int, choiceSet string) (model.AnswerKey, error) {
	key := make(model.AnswerKey)
	upperSet := strings.ToUpper(choiceSet)

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		numRaw := strings.TrimSpace(strings.Trim(row[0], `"`))
		choice := strings.ToUpper(strings.TrimSpace(strings.Trim(row[1], `"`)))
		if numRaw == "" && choice == "" {
			continue
		}

		num, err := strconv.Atoi(numRaw)
		if err != nil || num < 1 || num > total {
			return nil, fmt.Errorf("question number %q out of range 1..%d", numRaw, total)
		}
		if len(choice) != 1 || !strings.Contains(upperSet, choice) {
			return nil, fmt.Errorf("choice %q is not valid for question %d (allowed: %s)", choice, num, choiceSet)
		}
		if _, dup := key[num]; dup {
			return nil, fmt.Errorf("duplicate row for question %d", num)
		}
		key[num] = choice
	}

	if len(key) == 0 {
		return nil, ErrEmptyKeyFile
	}
	return key, nil
}
