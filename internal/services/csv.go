package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
)

// PatientCSVHeader is the column order written by ExportPatientsCSV.
var PatientCSVHeader = []string{"id", "name", "age", "gender", "mobile", "address", "referral", "history", "created_at"}

var requiredImportColumns = []string{"name", "age", "gender", "mobile"}

// ExportPatientsCSV writes every patient in id order to w. Patients are
// loaded before the first byte is written so a slow reader never holds a
// database connection.
func (s *RecordService) ExportPatientsCSV(ctx context.Context, w io.Writer) error {
	patients, err := s.store.AllPatients(ctx)
	if err != nil {
		return fmt.Errorf("export patients: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(PatientCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range patients {
		if err := cw.Write([]string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			strconv.Itoa(p.Age),
			p.Gender,
			p.Mobile,
			deref(p.Address),
			deref(p.Referral),
			deref(p.History),
			p.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	s.logger.InfoContext(ctx, "Exported patients", log.FieldOperation, log.OpExport, log.FieldCount, len(patients))
	return nil
}

// ImportPatientsCSV creates one patient per data row, in order. The header
// row locates columns by name. The first bad row aborts the import; rows
// before it stay committed. It returns the number of patients created.
func (s *RecordService) ImportPatientsCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, core.Invalidf("", "CSV file is empty")
	}
	if err != nil {
		return 0, core.Invalidf("", "read header: %v", err)
	}

	cols := indexColumns(header)
	var missing []string
	for _, name := range requiredImportColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return 0, core.Invalidf("", "missing required columns: %s", strings.Join(missing, ", "))
	}

	imported := 0
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, core.Invalidf("", "row %d: %v", row, err)
		}
		if blank(record) {
			continue
		}

		in, err := patientFromRecord(record, cols)
		if err != nil {
			return imported, core.Invalidf("", "row %d: %v", row, err)
		}
		if _, err := s.CreatePatient(ctx, in); err != nil {
			var verr *core.ValidationError
			if errors.As(err, &verr) {
				return imported, core.Invalidf("", "row %d: %v", row, err)
			}
			return imported, fmt.Errorf("row %d: %w", row, err)
		}
		imported++
	}

	s.logger.InfoContext(ctx, "Imported patients", log.FieldOperation, log.OpImport, log.FieldCount, imported)
	return imported, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup && name != "" {
			cols[name] = i
		}
	}
	return cols
}

func patientFromRecord(record []string, cols map[string]int) (core.PatientInput, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ageText := field("age")
	if ageText == "" {
		return core.PatientInput{}, core.ErrMissingAge
	}
	age, err := strconv.Atoi(ageText)
	if err != nil {
		return core.PatientInput{}, fmt.Errorf("age %q is not a whole number", ageText)
	}

	return core.PatientInput{
		Name:     field("name"),
		Age:      &age,
		Gender:   field("gender"),
		Mobile:   field("mobile"),
		Address:  core.StringPtr(field("address")),
		Referral: core.StringPtr(field("referral")),
		History:  core.StringPtr(field("history")),
	}, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
