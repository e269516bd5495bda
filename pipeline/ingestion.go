package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"flightdash/models"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadOptions 数据加载选项
type LoadOptions struct {
	Encoding string // utf-8 (默认), latin1, windows-1252, gbk
	Logger   *zap.Logger
}

// Dataset 加载并清洗后的数据集
type Dataset struct {
	Source   string                `json:"source"`
	Records  []models.FlightRecord `json:"-"`
	Stats    CleaningStats         `json:"stats"`
	Issues   []QualityIssue        `json:"issues"`
	LoadedAt time.Time             `json:"loaded_at"`
}

var naValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL"}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"2006-01-02",
}

// ReadFile 从CSV文件加载数据集
func ReadFile(path string, opts LoadOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	ds, err := Read(file, opts)
	if err != nil {
		return nil, err
	}
	ds.Source = path
	return ds, nil
}

// Read 解析CSV并执行清洗
func Read(r io.Reader, opts LoadOptions) (*Dataset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dec, err := decoderFor(opts.Encoding)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	df := dataframe.ReadCSV(bytes.NewReader(raw),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(naValues),
	)
	var records []models.FlightRecord
	if df.Err != nil {
		// gota 不接受只有表头的文件
		if err := checkHeaderOnly(raw); err != nil {
			var se *SchemaError
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, &SchemaError{Reason: df.Err.Error()}
		}
		logger.Warn("dataset has a header but no rows")
	} else {
		records, err = parseFrame(df)
		if err != nil {
			return nil, err
		}
	}

	cleaner := NewDataCleaner(logger)
	cleaned, issues := cleaner.Clean(records)
	stats := cleaner.GetStats()

	logger.Info("dataset loaded",
		zap.Int("rows", len(records)),
		zap.Int("kept", len(cleaned)),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("corrected", stats.Corrected),
	)

	return &Dataset{
		Records:  cleaned,
		Stats:    stats,
		Issues:   issues,
		LoadedAt: time.Now(),
	}, nil
}

func decoderFor(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "gbk":
		return simplifiedchinese.GBK.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported dataset encoding %q", name)
	}
}

// frameColumn 某一列的原始值和缺失标记
type frameColumn struct {
	name   string
	values []string
	na     []bool
}

func (c frameColumn) text(row int) string {
	if c.na[row] {
		return ""
	}
	return strings.TrimSpace(c.values[row])
}

// checkHeaderOnly 校验只有表头没有数据行的文件
func checkHeaderOnly(raw []byte) error {
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("expected a single header line, got %d lines", len(rows))
	}
	_, err = matchColumns(rows[0])
	return err
}

// matchColumns 把必需列名映射到文件中的原始列名
func matchColumns(names []string) (map[string]string, error) {
	header := make(map[string]string, len(names))
	for _, name := range names {
		header[strings.TrimSpace(name)] = name
	}
	matched := make(map[string]string, len(header))
	for _, name := range models.RequiredColumns() {
		raw, ok := header[name]
		if !ok {
			return nil, &SchemaError{Column: name, Reason: "missing required column"}
		}
		matched[name] = raw
	}
	return matched, nil
}

func parseFrame(df dataframe.DataFrame) ([]models.FlightRecord, error) {
	header, err := matchColumns(df.Names())
	if err != nil {
		return nil, err
	}

	cols := make(map[string]frameColumn)
	for name, raw := range header {
		s := df.Col(raw)
		cols[name] = frameColumn{name: name, values: s.Records(), na: s.IsNaN()}
	}

	records := make([]models.FlightRecord, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		rec, err := parseRow(cols, i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(cols map[string]frameColumn, i int) (models.FlightRecord, error) {
	p := rowParser{cols: cols, row: i}
	rec := models.FlightRecord{
		PassengerID:          p.required(models.ColPassengerID),
		FlightID:             p.required(models.ColFlightID),
		Airline:              p.required(models.ColAirline),
		DepartureAirport:     p.required(models.ColDepartureAirport),
		ArrivalAirport:       p.required(models.ColArrivalAirport),
		DepartureTime:        p.time(models.ColDepartureTime),
		DurationMinutes:      p.number(models.ColDuration),
		DistanceMiles:        p.number(models.ColDistance),
		PriceUSD:             p.number(models.ColPrice),
		Age:                  p.number(models.ColAge),
		Gender:               p.required(models.ColGender),
		IncomeLevel:          p.required(models.ColIncomeLevel),
		TravelPurpose:        p.required(models.ColTravelPurpose),
		SeatClass:            p.required(models.ColSeatClass),
		BagsChecked:          p.number(models.ColBagsChecked),
		FrequentFlyerStatus:  cols[models.ColFrequentFlyerStatus].text(i),
		CheckInMethod:        p.required(models.ColCheckInMethod),
		Status:               p.status(models.ColFlightStatus),
		DelayMinutes:         p.optionalNumber(models.ColDelayMinutes),
		BookingDaysInAdvance: p.number(models.ColBookingDaysInAdvance),
		WeatherImpact:        p.flag(models.ColWeatherImpact),
		SeatSelected:         p.required(models.ColSeatSelected),
		SatisfactionScore:    p.number(models.ColSatisfactionScore),
		NoShow:               p.flag(models.ColNoShow) == 1,
	}
	return rec, p.err
}

// rowParser 逐列解析一行，记录第一个错误
type rowParser struct {
	cols map[string]frameColumn
	row  int
	err  error
}

func (p *rowParser) fail(col, value, reason string) {
	if p.err == nil {
		p.err = &SchemaError{Column: col, Row: p.row + 1, Value: value, Reason: reason}
	}
}

func (p *rowParser) required(col string) string {
	v := p.cols[col].text(p.row)
	if v == "" {
		p.fail(col, v, "value is required")
	}
	return v
}

func (p *rowParser) number(col string) float64 {
	v := p.cols[col].text(p.row)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(col, v, "not a number")
		return 0
	}
	return f
}

func (p *rowParser) optionalNumber(col string) float64 {
	if p.cols[col].text(p.row) == "" {
		return 0
	}
	return p.number(col)
}

func (p *rowParser) flag(col string) float64 {
	v := p.cols[col].text(p.row)
	f, ok := ParseFlag(v)
	if !ok {
		p.fail(col, v, "not a boolean flag")
	}
	return f
}

func (p *rowParser) time(col string) time.Time {
	v := p.cols[col].text(p.row)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	p.fail(col, v, "unrecognized timestamp")
	return time.Time{}
}

func (p *rowParser) status(col string) models.FlightStatus {
	v := p.cols[col].text(p.row)
	s, ok := ParseStatus(v)
	if !ok {
		p.fail(col, v, "unknown flight status")
	}
	return s
}

// ParseStatus 解析航班状态，大小写不敏感
func ParseStatus(v string) (models.FlightStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on-time", "on time", "ontime":
		return models.StatusOnTime, true
	case "delayed":
		return models.StatusDelayed, true
	case "cancelled", "canceled":
		return models.StatusCancelled, true
	}
	return "", false
}

// ParseFlag 解析 0/1、true/false、yes/no 形式的标记
func ParseFlag(v string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "1.0", "true", "yes", "y", "t":
		return 1, true
	case "0", "0.0", "false", "no", "n", "f":
		return 0, true
	}
	return 0, false
}
