package http

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	"flightdash/pipeline"
	"flightdash/store"
)

const exportRouteLimit = 100

// csvReports 可导出的CSV报表
var csvReports = map[string]func(*store.Store, io.Writer) error{
	"airlines": func(st *store.Store, w io.Writer) error {
		return writeCSV(w, st.AirlinePerformance())
	},
	"routes": func(st *store.Store, w io.Writer) error {
		return writeCSV(w, st.TopRoutes(exportRouteLimit))
	},
	"segments": func(st *store.Store, w io.Writer) error {
		return writeCSV(w, st.CustomerSegments())
	},
	"daily": func(st *store.Store, w io.Writer) error {
		return writeCSV(w, st.DailySeries())
	},
	"flights": func(st *store.Store, w io.Writer) error {
		return pipeline.WriteCSV(w, st.Records())
	},
}

func writeCSV(w io.Writer, rows interface{}) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// sheet 工作表：表头加数据行
type sheet struct {
	name   string
	header []string
	rows   [][]interface{}
}

// buildWorkbook 生成包含KPI、航司、航线与客群四张工作表的Excel文件
func buildWorkbook(st *store.Store) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range workbookSheets(st) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sh); err != nil {
			return nil, fmt.Errorf("写入工作表 %s 失败: %w", sh.name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成Excel文件失败: %w", err)
	}
	return buf, nil
}

func writeSheet(f *excelize.File, sh sheet) error {
	for i, name := range sh.header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sh.name, cell, name); err != nil {
			return err
		}
	}
	for rowIdx, row := range sh.rows {
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func workbookSheets(st *store.Store) []sheet {
	kpi := st.SummaryStats()
	kpis := sheet{
		name:   "KPIs",
		header: []string{"Metric", "Value"},
		rows: [][]interface{}{
			{"Total Flights", kpi.TotalFlights},
			{"On-Time Rate", kpi.OnTimeRate},
			{"Average Delay", kpi.AvgDelay},
			{"Average Satisfaction", kpi.AvgSatisfaction},
			{"Total Revenue", kpi.TotalRevenue},
			{"Cancellation Rate", kpi.CancellationRate},
			{"No-Show Rate", kpi.NoShowRate},
			{"Average Age", kpi.AvgAge},
			{"Male Ratio", kpi.MaleRatio},
			{"Average Duration", kpi.AvgDuration},
			{"Average Distance", kpi.AvgDistance},
			{"Average Price", kpi.AvgPrice},
			{"Most Popular Airline", kpi.MostPopularAirline},
		},
	}

	airlines := sheet{
		name:   "Airlines",
		header: []string{"Airline", "Total_Flights", "Avg_Satisfaction", "Avg_Delay", "Avg_Price"},
	}
	for _, a := range st.AirlinePerformance() {
		airlines.rows = append(airlines.rows, []interface{}{a.Airline, a.TotalFlights, a.AvgSatisfaction, a.AvgDelay, a.AvgPrice})
	}

	routes := sheet{
		name:   "Routes",
		header: []string{"Route", "Flights", "Avg_Price_USD", "Avg_Delay_Minutes", "Avg_Satisfaction"},
	}
	for _, r := range st.TopRoutes(exportRouteLimit) {
		routes.rows = append(routes.rows, []interface{}{r.Route, r.Flights, r.AvgPrice, r.AvgDelay, r.AvgSatisfaction})
	}

	segments := sheet{
		name:   "Segments",
		header: []string{"Income_Level", "Travel_Purpose", "Flights", "Avg_Price_USD", "Avg_Satisfaction"},
	}
	for _, s := range st.CustomerSegments() {
		segments.rows = append(segments.rows, []interface{}{s.IncomeLevel, s.TravelPurpose, s.Flights, s.AvgPrice, s.AvgSatisfaction})
	}

	return []sheet{kpis, airlines, routes, segments}
}

// reportNames 已排序的CSV报表名，用于错误提示
func reportNames() []string {
	names := make([]string, 0, len(csvReports))
	for name := range csvReports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
