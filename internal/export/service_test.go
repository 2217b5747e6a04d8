package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

const assayTables = `{"tables":[
	{"table_name":"Assays: DH-1","columns":["hole","au_ppm","note"],"data":[
		{"hole":"DH-1","au_ppm":1.25,"note":null},
		{"hole":"DH-2","au_ppm":0.4,"note":"oxidized"}],"confidence_score":0.8,"raw_text":""},
	{"table_name":"Assays: DH-1","columns":["unit"],"data":[{"unit":"Roberts Mountains"}],"confidence_score":0.6,"raw_text":""}
]}`

func tableRecord(payload string) pipeline.DocumentRecord {
	return pipeline.DocumentRecord{
		SourceFile: "carlin.pdf",
		Tables: &extract.Result{
			Task:      constants.TaskTable,
			Payload:   json.RawMessage(payload),
			Succeeded: true,
		},
	}
}

func TestTablesXLSX_OneSheetPerTable(t *testing.T) {
	body, err := NewService(nil).TablesXLSX(context.Background(), tableRecord(assayTables))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Assays_ DH-1", "Assays_ DH-1 (2)"}, f.GetSheetList())

	rows, err := f.GetRows("Assays_ DH-1")
	require.NoError(t, err)
	require.Equal(t, []string{"hole", "au_ppm", "note"}, rows[0])
	require.Equal(t, []string{"DH-1", "1.25"}, rows[1][:2])
	require.Equal(t, []string{"DH-2", "0.4", "oxidized"}, rows[2])

	rows, err = f.GetRows("Assays_ DH-1 (2)")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"unit"}, {"Roberts Mountains"}}, rows)
}

func TestTablesXLSX_NoTables(t *testing.T) {
	body, err := NewService(nil).TablesXLSX(context.Background(), tableRecord(`{"tables":[]}`))
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	require.Equal(t, "no tables extracted", v)
}

func TestTablesXLSX_FailedTask(t *testing.T) {
	rec := tableRecord(assayTables)
	rec.Tables.Succeeded = false
	_, err := NewService(nil).TablesXLSX(context.Background(), rec)
	require.Error(t, err)
}

func TestWriteTablesXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carlin_tables.xlsx")
	require.NoError(t, NewService(nil).WriteTablesXLSX(context.Background(), tableRecord(assayTables), path))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	require.Equal(t, "Table 1", sheetName("  ", 0, used))
	long := "Major and trace element geochemistry of Carlin-type ores"
	got := sheetName(long, 1, used)
	require.Len(t, []rune(got), maxSheetName)
	again := sheetName(long, 2, used)
	require.NotEqual(t, got, again)
	require.LessOrEqual(t, len([]rune(again)), maxSheetName)
}
