// Package export は削除済みコメント記録のCSV出力を提供する。
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/toxguard/internal/model"
)

// tombstoneHeader はCSVのヘッダー行。
var tombstoneHeader = []string{
	"Comment ID", "Content", "Toxic", "Severe Toxic", "Obscene", "Threat",
	"Insult", "Identity Hate", "Reason for Deletion", "Deleted At",
}

// WriteTombstonesCSV は削除済みコメント記録をCSV形式で書き出す。
// 真偽値は1/0、削除日時はRFC3339形式（UTC）で出力する。改行はCRLFとする。
// ユーザーが入力したテキストは表計算ソフトで数式として解釈されないよう textCell を通す。
func WriteTombstonesCSV(w io.Writer, tombstones []*model.Tombstone) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(tombstoneHeader); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}

	for _, t := range tombstones {
		record := []string{
			t.CommentID,
			textCell(t.Content),
			boolField(t.Labels.Toxic),
			boolField(t.Labels.SevereToxic),
			boolField(t.Labels.Obscene),
			boolField(t.Labels.Threat),
			boolField(t.Labels.Insult),
			boolField(t.Labels.IdentityHate),
			textCell(t.ReasonForDeletion),
			t.DeletedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSV行の書き込みに失敗しました: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	return nil
}

// textCell は数式として解釈される先頭文字を持つ値の前に ' を付ける。
func textCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
