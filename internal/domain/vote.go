package domain

// Vote is immutable once cast. Changing a vote removes the old one and
// appends a new one.
type Vote struct {
	UserID    UserID   `json:"userId"`
	UserName  string   `json:"userName"`
	OptionID  OptionID `json:"optionId"`
	Timestamp int64    `json:"timestamp"` // unix millis
}
