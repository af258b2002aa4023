package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/toxguard/internal/model"
)

func TestWriteTombstonesCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTombstonesCSV(&buf, nil); err != nil {
		t.Fatalf("WriteTombstonesCSV がエラーを返した: %v", err)
	}

	want := "Comment ID,Content,Toxic,Severe Toxic,Obscene,Threat,Insult,Identity Hate,Reason for Deletion,Deleted At\r\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriteTombstonesCSV_Rows(t *testing.T) {
	deletedAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("JST", 9*60*60))
	tombstones := []*model.Tombstone{
		{
			CommentID:         "c1",
			Content:           "you are, \"bad\"\nreally",
			Labels:            model.LabelSet{Toxic: true, Insult: true},
			ReasonForDeletion: "spam",
			DeletedAt:         deletedAt,
		},
		{
			CommentID:         "c2",
			Content:           "plain",
			ReasonForDeletion: model.DefaultDeletionReason,
			DeletedAt:         deletedAt,
		},
	}

	var buf bytes.Buffer
	if err := WriteTombstonesCSV(&buf, tombstones); err != nil {
		t.Fatalf("WriteTombstonesCSV がエラーを返した: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("出力CSVの読み取りに失敗: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("行数 = %d, want 3", len(records))
	}

	want := []string{"c1", "you are, \"bad\"\nreally", "1", "0", "0", "0", "1", "0", "spam", "2024-05-01T03:30:00Z"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("row1[%d] = %q, want %q", i, records[1][i], v)
		}
	}
	if records[2][8] != "Not specified" {
		t.Errorf("row2 reason = %q, want %q", records[2][8], "Not specified")
	}
	for i := 2; i <= 7; i++ {
		if records[2][i] != "0" {
			t.Errorf("row2[%d] = %q, want 0", i, records[2][i])
		}
	}
}

// TestWriteTombstonesCSV_FormulaCells は数式として解釈される値が ' で無効化されることを検証する。
func TestWriteTombstonesCSV_FormulaCells(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{`=HYPERLINK("http://evil.example","click")`, `'=HYPERLINK("http://evil.example","click")`},
		{"+1+1", "'+1+1"},
		{"-2+3", "'-2+3"},
		{"@SUM(A1:A2)", "'@SUM(A1:A2)"},
		{"\t=1", "'\t=1"},
		{"a = b", "a = b"},
		{"you are 'bad'", "you are 'bad'"},
		{"", ""},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		tombstones := []*model.Tombstone{{
			CommentID:         "c1",
			Content:           tt.content,
			ReasonForDeletion: tt.content,
			DeletedAt:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		}}
		if err := WriteTombstonesCSV(&buf, tombstones); err != nil {
			t.Fatalf("WriteTombstonesCSV がエラーを返した: %v", err)
		}
		records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
		if err != nil {
			t.Fatalf("出力CSVの読み取りに失敗: %v", err)
		}
		if records[1][1] != tt.want {
			t.Errorf("content %q: cell = %q, want %q", tt.content, records[1][1], tt.want)
		}
		if records[1][8] != tt.want {
			t.Errorf("reason %q: cell = %q, want %q", tt.content, records[1][8], tt.want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteTombstonesCSV_WriterError(t *testing.T) {
	err := WriteTombstonesCSV(failingWriter{}, []*model.Tombstone{{CommentID: "c1"}})
	if err == nil {
		t.Fatal("書き込み失敗時はエラーを返すべき")
	}
}
