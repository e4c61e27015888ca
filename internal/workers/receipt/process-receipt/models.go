package processreceipt

// Input is the variable set of a process-receipt job. File is base64.
type Input struct {
	FileID      string `json:"fileId,omitempty"`
	EmployeeID  string `json:"employeeId"`
	File        string `json:"receiptFile"`
	ContentType string `json:"contentType,omitempty"`
}

// Output is written back to the process instance.
type Output struct {
	FileID           string  `json:"fileId"`
	ReceiptID        string  `json:"receiptId"`
	Category         string  `json:"receiptCategory"`
	Outcome          string  `json:"receiptOutcome"`
	IsDuplicate      bool    `json:"isDuplicate"`
	DuplicateScore   float64 `json:"duplicateScore"`
	MatchedReceiptID string  `json:"matchedReceiptId,omitempty"`
	AgentTurns       int     `json:"agentTurns"`
	ProcessedAt      string  `json:"processedAt"` // ISO 8601
}
