package domain

import (
	"fmt"
	"testing"
)

func TestBatchResultSuccessRate(t *testing.T) {
	tests := []struct {
		total, succeeded int
		want             float64
	}{
		{0, 0, 100.0},
		{10, 10, 100.0},
		{10, 5, 50.0},
		{10, 0, 0.0},
		{3, 2, 200.0 / 3.0},
	}
	for _, tt := range tests {
		r := BatchResult{Total: tt.total, Succeeded: tt.succeeded}
		if got := r.SuccessRate(); got != tt.want {
			t.Errorf("SuccessRate(%d/%d) = %f, want %f", tt.succeeded, tt.total, got, tt.want)
		}
	}
}

func TestBatchResultAddError_Bounded(t *testing.T) {
	var r BatchResult
	for i := 0; i < MaxBatchErrors+50; i++ {
		r.AddError(fmt.Sprintf("error %d", i))
	}
	if len(r.Errors) != MaxBatchErrors {
		t.Errorf("errors = %d, want bounded at %d", len(r.Errors), MaxBatchErrors)
	}
}
