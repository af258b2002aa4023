package model

import "time"

// ラベル名。推論サービスのJSONキーおよびフォーム項目名と一致する。
const (
	LabelToxic        = "toxic"
	LabelSevereToxic  = "severe_toxic"
	LabelObscene      = "obscene"
	LabelThreat       = "threat"
	LabelInsult       = "insult"
	LabelIdentityHate = "identity_hate"
)

// LabelNames は6次元のラベル名を固定順で返す。
func LabelNames() []string {
	return []string{LabelToxic, LabelSevereToxic, LabelObscene, LabelThreat, LabelInsult, LabelIdentityHate}
}

// LabelSet は6次元の毒性ラベルを表す。
type LabelSet struct {
	Toxic        bool `json:"toxic"`
	SevereToxic  bool `json:"severe_toxic"`
	Obscene      bool `json:"obscene"`
	Threat       bool `json:"threat"`
	Insult       bool `json:"insult"`
	IdentityHate bool `json:"identity_hate"`
}

// LabelSetFromFields はフォーム送信されたラベル名の一覧からLabelSetを構築する。
// 含まれないラベルはfalseとなる。未知のラベル名は無視する。
func LabelSetFromFields(fields []string) LabelSet {
	var ls LabelSet
	for _, f := range fields {
		switch f {
		case LabelToxic:
			ls.Toxic = true
		case LabelSevereToxic:
			ls.SevereToxic = true
		case LabelObscene:
			ls.Obscene = true
		case LabelThreat:
			ls.Threat = true
		case LabelInsult:
			ls.Insult = true
		case LabelIdentityHate:
			ls.IdentityHate = true
		}
	}
	return ls
}

// Any はいずれかのラベルが立っているかを返す。
func (l LabelSet) Any() bool {
	return l.Toxic || l.SevereToxic || l.Obscene || l.Threat || l.Insult || l.IdentityHate
}

// PredictionSource は予測ラベルの書き込み元。
// 内部の監査用であり、読み出し側の表現には影響しない。
type PredictionSource string

const (
	// PredictionSourceModel は推論サービスによる自動予測。
	PredictionSourceModel PredictionSource = "model"
	// PredictionSourceManual はモデレーターによる手動修正。
	PredictionSourceManual PredictionSource = "manual"
)

// Prediction はコメントに1対1で紐づく現在の毒性ラベル。
type Prediction struct {
	ID          string
	CommentID   string // comments.id への参照
	Labels      LabelSet
	Source      PredictionSource
	PredictedAt time.Time
}
