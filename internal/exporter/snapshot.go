package exporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/pkg/contracts/domain"
)

const (
	snapshotFileName = "borrowings.csv"
	metadataFileName = "metadata.json"
)

// snapshotBaseHeader covers the cleaned loan columns
var snapshotBaseHeader = []string{
	"user_id",
	"user_category",
	"media_type",
	"isbn",
	"barcode",
	"issue_time",
	"return_time",
	"late",
	"loan_duration",
	"days_late",
	"extensions",
	"source_year",
	"open_days",
	"max_allowed_open_days",
	"weird_loan",
}

// snapshotFeatureHeader covers the derived feature columns; all of them
// are empty on anonymous loans
var snapshotFeatureHeader = []string{
	"late_flag",
	"session_day",
	"session_index",
	"session_size",
	"session_late",
	"session_extended",
	"dominant_media_type",
	"experience_stage",
	"weekday",
	"hour",
	"precise_hour",
	"modal_weekday",
	"modal_hour",
	"user_mean_hour",
	"user_std_hour",
	"matches_typical_time",
}

// snapshotHeader is the fixed column order of the snapshot CSV
var snapshotHeader = append(append([]string(nil), snapshotBaseHeader...), snapshotFeatureHeader...)

const sessionDayLayout = "2006-01-02"

// Metadata is the sidecar written next to every snapshot
type Metadata struct {
	Version   string   `json:"version"`
	RunID     string   `json:"run_id"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns"`
	CreatedAt string   `json:"created_at"`
}

// SnapshotStore saves and restores enriched datasets under versioned
// directories. A snapshot is one semicolon CSV plus a metadata sidecar;
// loading validates the sidecar against the file before returning.
type SnapshotStore struct {
	paths  *config.PathsConfig
	writer *CSVWriter
	logger *slog.Logger
}

// NewSnapshotStore creates a snapshot store
func NewSnapshotStore(paths *config.PathsConfig, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{paths: paths, writer: NewCSVWriter(), logger: logger}
}

// SnapshotPath returns the CSV path of a snapshot version
func (s *SnapshotStore) SnapshotPath(version string) string {
	return filepath.Join(s.paths.ProcessedVersionDir(version), snapshotFileName)
}

// MetadataPath returns the sidecar path of a snapshot version
func (s *SnapshotStore) MetadataPath(version string) string {
	return filepath.Join(s.paths.ProcessedVersionDir(version), metadataFileName)
}

// Save persists an enriched dataset as a snapshot. The CSV keeps raw
// string cells out and parsed values in, so a restored dataset skips
// the loader, the cleaning engine and the feature builder entirely.
// Rows stream to disk one at a time instead of buffering the table.
func (s *SnapshotStore) Save(ctx context.Context, version string, ds *domain.Dataset) (*Metadata, error) {
	csvPath := s.SnapshotPath(version)
	stream, err := s.writer.CreateStreamWriter(csvPath, snapshotHeader, ';')
	if err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	for i := range ds.Records {
		if err := stream.WriteRecord(snapshotRow(&ds.Records[i])); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to write snapshot row %d: %w", i, err)
		}
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	meta := &Metadata{
		Version:   version,
		RunID:     uuid.NewString(),
		Rows:      len(ds.Records),
		Columns:   append([]string(nil), snapshotHeader...),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.writeMetadata(version, meta); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "snapshot saved",
		slog.String("version", version),
		slog.String("run_id", meta.RunID),
		slog.Int("rows", meta.Rows),
		slog.String("path", csvPath))

	return meta, nil
}

// Load restores a snapshot, validating row count and header against the
// metadata sidecar. Returns a not-found error when the version has not
// been saved.
func (s *SnapshotStore) Load(ctx context.Context, version string) (*domain.Dataset, *Metadata, error) {
	meta, err := s.ReadMetadata(version)
	if err != nil {
		return nil, nil, err
	}

	csvPath := s.SnapshotPath(version)
	file, err := os.Open(csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.NotFound("snapshot csv %s", csvPath)
		}
		return nil, nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("snapshot %s is empty", csvPath)
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	if len(header) != len(snapshotHeader) {
		return nil, nil, fmt.Errorf("snapshot header has %d columns, expected %d", len(header), len(snapshotHeader))
	}
	for i, name := range snapshotHeader {
		if header[i] != name {
			return nil, nil, fmt.Errorf("snapshot column %d is %q, expected %q", i, header[i], name)
		}
	}

	dataRows := rows[1:]
	if len(dataRows) != meta.Rows {
		return nil, nil, fmt.Errorf("snapshot has %d rows, metadata says %d", len(dataRows), meta.Rows)
	}

	ds := &domain.Dataset{
		Records: make([]domain.LoanRecord, 0, len(dataRows)),
		Columns: snapshotColumnSet(),
	}
	for i, row := range dataRows {
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot row %d: %w", i+1, err)
		}
		ds.Records = append(ds.Records, rec)
	}

	s.logger.InfoContext(ctx, "snapshot loaded",
		slog.String("version", version),
		slog.String("run_id", meta.RunID),
		slog.Int("rows", len(ds.Records)))

	return ds, meta, nil
}

// ReadMetadata reads only the sidecar of a snapshot version
func (s *SnapshotStore) ReadMetadata(version string) (*Metadata, error) {
	data, err := os.ReadFile(s.MetadataPath(version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound("snapshot version %s", version)
		}
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot metadata: %w", err)
	}
	return &meta, nil
}

func (s *SnapshotStore) writeMetadata(version string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot metadata: %w", err)
	}
	if err := os.WriteFile(s.MetadataPath(version), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return nil
}

func snapshotRow(rec *domain.LoanRecord) []string {
	row := []string{
		rec.UserID,
		rec.UserCategory,
		rec.MediaType,
		rec.ISBN,
		rec.Barcode,
		formatNullTime(rec.IssueTime),
		formatNullTime(rec.ReturnTime),
		formatBool(rec.Late),
		formatNullFloat(rec.LoanDuration),
		formatNullFloat(rec.DaysLate),
		formatNullFloat(rec.Extensions),
		strconv.Itoa(rec.SourceYear),
		formatNullFloat(rec.OpenDays),
		formatNullFloat(rec.MaxAllowedOpenDays),
		formatBool(rec.WeirdLoan),
	}

	f := rec.Features
	if f == nil {
		return append(row, make([]string, len(snapshotFeatureHeader))...)
	}
	return append(row,
		formatBool(f.LateFlag),
		f.SessionDay.Format(sessionDayLayout),
		strconv.Itoa(f.SessionIndex),
		strconv.Itoa(f.SessionSize),
		formatBool(f.SessionLateFlag),
		formatBool(f.SessionExtensionFlag),
		f.DominantMediaType,
		string(f.ExperienceStage),
		strconv.Itoa(int(f.Weekday)),
		strconv.Itoa(f.Hour),
		strconv.FormatFloat(f.PreciseHour, 'f', -1, 64),
		strconv.Itoa(int(f.ModalWeekday)),
		strconv.Itoa(f.ModalHour),
		strconv.FormatFloat(f.UserMeanPreciseHour, 'f', -1, 64),
		strconv.FormatFloat(f.UserStdPreciseHour, 'f', -1, 64),
		formatBool(f.MatchesTypicalTime),
	)
}

func recordFromRow(row []string) (domain.LoanRecord, error) {
	if len(row) != len(snapshotHeader) {
		return domain.LoanRecord{}, fmt.Errorf("has %d fields, expected %d", len(row), len(snapshotHeader))
	}

	late, err := strconv.ParseBool(row[7])
	if err != nil {
		return domain.LoanRecord{}, fmt.Errorf("invalid late flag %q", row[7])
	}
	weird, err := strconv.ParseBool(row[14])
	if err != nil {
		return domain.LoanRecord{}, fmt.Errorf("invalid weird flag %q", row[14])
	}
	sourceYear, err := strconv.Atoi(row[11])
	if err != nil {
		return domain.LoanRecord{}, fmt.Errorf("invalid source year %q", row[11])
	}

	rec := domain.LoanRecord{
		UserID:       row[0],
		UserCategory: row[1],
		MediaType:    row[2],
		ISBN:         row[3],
		Barcode:      row[4],
		IssueTime:    parseNullTime(row[5]),
		ReturnTime:   parseNullTime(row[6]),
		// the stored flag doubles as the raw cell so the restored
		// dataset stays consistent under the late-flag invariant
		LateRaw:            row[7],
		Late:               late,
		LoanDuration:       parseNullFloat(row[8]),
		DaysLate:           parseNullFloat(row[9]),
		Extensions:         parseNullFloat(row[10]),
		SourceYear:         sourceYear,
		OpenDays:           parseNullFloat(row[12]),
		MaxAllowedOpenDays: parseNullFloat(row[13]),
		WeirdLoan:          weird,
	}

	features, err := featuresFromRow(row[len(snapshotBaseHeader):])
	if err != nil {
		return domain.LoanRecord{}, err
	}
	rec.Features = features
	return rec, nil
}

// featuresFromRow rebuilds the derived features from their cells. An
// empty session index marks an anonymous loan with no features at all.
func featuresFromRow(cells []string) (*domain.LoanFeatures, error) {
	if cells[2] == "" {
		return nil, nil
	}

	sessionDay, err := time.Parse(sessionDayLayout, cells[1])
	if err != nil {
		return nil, fmt.Errorf("invalid session day %q", cells[1])
	}

	ints := make([]int, 0, 6)
	for _, pos := range []int{2, 3, 8, 9, 11, 12} {
		v, err := strconv.Atoi(cells[pos])
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", snapshotFeatureHeader[pos], cells[pos])
		}
		ints = append(ints, v)
	}

	floats := make([]float64, 0, 3)
	for _, pos := range []int{10, 13, 14} {
		v, err := strconv.ParseFloat(cells[pos], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", snapshotFeatureHeader[pos], cells[pos])
		}
		floats = append(floats, v)
	}

	bools := make([]bool, 0, 4)
	for _, pos := range []int{0, 4, 5, 15} {
		v, err := strconv.ParseBool(cells[pos])
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", snapshotFeatureHeader[pos], cells[pos])
		}
		bools = append(bools, v)
	}

	return &domain.LoanFeatures{
		LateFlag:             bools[0],
		SessionDay:           sessionDay,
		SessionIndex:         ints[0],
		SessionSize:          ints[1],
		SessionLateFlag:      bools[1],
		SessionExtensionFlag: bools[2],
		DominantMediaType:    cells[6],
		ExperienceStage:      domain.ExperienceStage(cells[7]),
		Weekday:              time.Weekday(ints[2]),
		Hour:                 ints[3],
		PreciseHour:          floats[0],
		ModalWeekday:         time.Weekday(ints[4]),
		ModalHour:            ints[5],
		UserMeanPreciseHour:  floats[1],
		UserStdPreciseHour:   floats[2],
		MatchesTypicalTime:   bools[3],
	}, nil
}

func snapshotColumnSet() domain.ColumnSet {
	return domain.ColumnSet{
		domain.ColumnIssue:        true,
		domain.ColumnReturn:       true,
		domain.ColumnUserID:       true,
		domain.ColumnUserCategory: true,
		domain.ColumnMediaType:    true,
		domain.ColumnISBN:         true,
		domain.ColumnBarcode:      true,
		domain.ColumnLoanDuration: true,
		domain.ColumnDaysLate:     true,
		domain.ColumnLate:         true,
		domain.ColumnExtensions:   true,
	}
}
