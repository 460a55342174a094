package storage

// MatchRecord is the persisted form of one committed match. Numeric fields
// are decimal strings so records survive JSON without precision loss.
type MatchRecord struct {
	Seq         uint64 `json:"seq"`
	FirstHash   string `json:"first_hash"`
	SecondHash  string `json:"second_hash"`
	FirstMaker  string `json:"first_maker"`
	SecondMaker string `json:"second_maker"`
	FirstFill   string `json:"first_fill"`
	SecondFill  string `json:"second_fill"`
	Metadata    string `json:"metadata"`
	Matcher     string `json:"matcher"`
	Value       string `json:"value"`
	Timestamp   int64  `json:"timestamp"`
}
