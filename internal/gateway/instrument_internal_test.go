package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		succeeded bool
		err       error
		want      string
	}{
		{name: "success", code: ResultSuccess, succeeded: true, want: "success"},
		{name: "cancel success code", code: "00", succeeded: true, want: "success"},
		{name: "provider rejection", code: "V013", want: "rejected"},
		{name: "arbitrary provider code", code: "ABORTED_BY_USER_7731", want: "rejected"},
		{name: "synthetic comm failure", code: ResultCommFailure, want: "error"},
		{name: "transport error", err: ErrUnreachable, want: "error"},
		{name: "no outcome", want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultLabel(tt.code, tt.succeeded, tt.err))
		})
	}
}
