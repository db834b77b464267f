package entities

import "testing"

func TestRef_String(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{
			name: "simple reference",
			ref:  Ref{Type: "agent", ID: 5},
			want: "agent:5",
		},
		{
			name: "large id",
			ref:  Ref{Type: "resource", ID: 9007199254740993},
			want: "resource:9007199254740993",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.String(); got != tt.want {
				t.Errorf("Ref.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRef_IsZero(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want bool
	}{
		{
			name: "zero value",
			ref:  Ref{},
			want: true,
		},
		{
			name: "type only",
			ref:  Ref{Type: "agent"},
			want: false,
		},
		{
			name: "id only",
			ref:  Ref{ID: 1},
			want: false,
		},
		{
			name: "complete reference",
			ref:  Ref{Type: "agent", ID: 1},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.IsZero(); got != tt.want {
				t.Errorf("Ref.IsZero() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Ref
		wantErr bool
	}{
		{
			name:  "simple reference",
			input: "agent:5",
			want:  Ref{Type: "agent", ID: 5},
		},
		{
			name:  "type containing a colon",
			input: "agent:person:5",
			want:  Ref{Type: "agent:person", ID: 5},
		},
		{
			name:    "missing separator",
			input:   "agent5",
			wantErr: true,
		},
		{
			name:    "missing id",
			input:   "agent:",
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   ":5",
			wantErr: true,
		},
		{
			name:    "non-numeric id",
			input:   "agent:five",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRef(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRef_RoundTrip(t *testing.T) {
	refs := []Ref{
		{Type: "agent", ID: 1},
		{Type: "resource", ID: 42},
		{Type: "subject", ID: 123456789},
	}

	for _, ref := range refs {
		got, err := ParseRef(ref.String())
		if err != nil {
			t.Errorf("ParseRef(%q) error = %v", ref.String(), err)
			continue
		}
		if got != ref {
			t.Errorf("ParseRef(%q) = %v, want %v", ref.String(), got, ref)
		}
	}
}
