package validation

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		want    string
		wantErr bool
	}{
		{name: "local 07 form", phone: "0712345678", want: "254712345678"},
		{name: "local 01 form", phone: "0112345678", want: "254112345678"},
		{name: "international form", phone: "254712345678", want: "254712345678"},
		{name: "plus prefix", phone: "+254712345678", want: "254712345678"},
		{name: "spaces and dashes", phone: "0712 345-678", want: "254712345678"},
		{name: "too short", phone: "07123", wantErr: true},
		{name: "too long", phone: "25471234567890", wantErr: true},
		{name: "letters", phone: "07one234567", wantErr: true},
		{name: "foreign prefix", phone: "79161234567", wantErr: true},
		{name: "empty", phone: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.phone)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("NormalizePhone(%q) error = %v, want ErrInvalidPhone", tt.phone, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q) error = %v", tt.phone, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}
