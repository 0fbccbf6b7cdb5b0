package model

import (
	"math"
	"strconv"
	"strings"
)

// TransactionForm is the operator's input, kept as text until submission.
type TransactionForm struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Amount string `json:"amount" validate:"required,amount"`
}

// Trimmed returns the form with surrounding whitespace removed from every field.
func (f TransactionForm) Trimmed() TransactionForm {
	return TransactionForm{
		Source: strings.TrimSpace(f.Source),
		Target: strings.TrimSpace(f.Target),
		Amount: strings.TrimSpace(f.Amount),
	}
}

// Validate checks that all three fields are present and the amount is a
// finite number in any form strconv.ParseFloat reads (".5", "1e3"). It returns a *ValidationError describing every failure.
func (f TransactionForm) Validate() error {
	return validateStruct(f.Trimmed())
}

// Request converts a validated form to its wire shape.
func (f TransactionForm) Request() (*TransactionRequest, error) {
	t := f.Trimmed()
	if err := validateStruct(t); err != nil {
		return nil, err
	}
	amount, ok := parseAmount(t.Amount)
	if !ok {
		return nil, &ValidationError{Errors: []FieldError{{Field: "amount", Message: "must be a number"}}}
	}
	return &TransactionRequest{SourceAccount: t.Source, TargetAccount: t.Target, Amount: amount}, nil
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// TransactionRequest is the body posted to the transaction service.
type TransactionRequest struct {
	SourceAccount string  `json:"sourceAccount"`
	TargetAccount string  `json:"targetAccount"`
	Amount        float64 `json:"amount"`
}

// TransactionResponse is the transaction service's reply. Every field is
// optional; a reply without a body decodes to the zero value.
type TransactionResponse struct {
	ID        string   `json:"-"`
	RiskScore *float64 `json:"riskScore,omitempty"`
	Verdict   string   `json:"verdict,omitempty"`
}

// DefaultVerdict is reported when the service does not return one.
const DefaultVerdict = "Transaction stored"

// Result converts the response into what the console shows.
func (r *TransactionResponse) Result() *SubmissionResult {
	res := &SubmissionResult{Reasons: []string{DefaultVerdict}}
	if r == nil {
		return res
	}
	res.RiskScore = r.RiskScore
	if r.Verdict != "" {
		res.Reasons = []string{r.Verdict}
	}
	return res
}

// DecodeTransactionResponse reads a reply whose id may be a string or a number.
func DecodeTransactionResponse(f Fields) *TransactionResponse {
	r := &TransactionResponse{}
	r.ID, _ = f.String("id", "transactionId")
	if score, ok := f.Float("riskScore", "risk_score"); ok {
		r.RiskScore = &score
	}
	r.Verdict, _ = f.String("verdict")
	return r
}
