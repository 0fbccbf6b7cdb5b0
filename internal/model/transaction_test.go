package model

import (
	"errors"
	"testing"
)

func TestTransactionForm_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		form   TransactionForm
		fields []string
	}{
		{"valid", TransactionForm{Source: "A1", Target: "B2", Amount: "250"}, nil},
		{"valid decimal", TransactionForm{Source: "A1", Target: "B2", Amount: " 12.50 "}, nil},
		{"all missing", TransactionForm{}, []string{"source", "target", "amount"}},
		{"blank source", TransactionForm{Source: "  ", Target: "B2", Amount: "1"}, []string{"source"}},
		{"non-numeric amount", TransactionForm{Source: "A1", Target: "B2", Amount: "ten"}, []string{"amount"}},
		{"leading dot", TransactionForm{Source: "A1", Target: "B2", Amount: ".5"}, nil},
		{"exponent", TransactionForm{Source: "A1", Target: "B2", Amount: "1e3"}, nil},
		{"not a number", TransactionForm{Source: "A1", Target: "B2", Amount: "NaN"}, []string{"amount"}},
		{"infinite", TransactionForm{Source: "A1", Target: "B2", Amount: "-Inf"}, []string{"amount"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.form.Validate()
			if tc.fields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if len(ve.Errors) != len(tc.fields) {
				t.Fatalf("got %d field errors (%v), want %d", len(ve.Errors), ve, len(tc.fields))
			}
			for i, f := range tc.fields {
				if ve.Errors[i].Field != f {
					t.Errorf("Errors[%d].Field = %q, want %q", i, ve.Errors[i].Field, f)
				}
			}
		})
	}
}

func TestTransactionForm_Request(t *testing.T) {
	req, err := TransactionForm{Source: " A1", Target: "B2 ", Amount: "99.5"}.Request()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.SourceAccount != "A1" || req.TargetAccount != "B2" || req.Amount != 99.5 {
		t.Errorf("Request() = %+v", req)
	}
}

func TestTransactionResponse_Result(t *testing.T) {
	var nilResp *TransactionResponse
	if got := nilResp.Result(); got.RiskScore != nil || got.Reasons[0] != DefaultVerdict {
		t.Errorf("nil response Result() = %+v", got)
	}
	score := 0.7
	got := (&TransactionResponse{RiskScore: &score, Verdict: "flagged"}).Result()
	if *got.RiskScore != 0.7 || len(got.Reasons) != 1 || got.Reasons[0] != "flagged" {
		t.Errorf("Result() = %+v", got)
	}
}

func TestDecodeTransactionResponse(t *testing.T) {
	r := DecodeTransactionResponse(Fields{"id": []byte(`1234`), "riskScore": []byte(`0.42`)})
	if r.ID != "1234" {
		t.Errorf("ID = %q, want 1234", r.ID)
	}
	if r.RiskScore == nil || *r.RiskScore != 0.42 {
		t.Errorf("RiskScore = %v", r.RiskScore)
	}
	if r.Result().Reasons[0] != DefaultVerdict {
		t.Errorf("Reasons = %v", r.Result().Reasons)
	}
}

func TestTransactionForm_RequestAmountForms(t *testing.T) {
	for in, want := range map[string]float64{".5": 0.5, "1e3": 1000, "-2": -2} {
		req, err := TransactionForm{Source: "A1", Target: "B2", Amount: in}.Request()
		if err != nil {
			t.Errorf("Request(%q): %v", in, err)
			continue
		}
		if req.Amount != want {
			t.Errorf("Request(%q).Amount = %v, want %v", in, req.Amount, want)
		}
	}
}
