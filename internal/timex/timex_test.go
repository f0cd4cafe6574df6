package timex

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339 with fractional seconds",
			input: "2023-05-30T07:23:34.389Z",
			want:  time.Date(2023, 5, 30, 7, 23, 34, 389000000, time.UTC),
		},
		{
			name:  "rfc3339 without fraction",
			input: "2023-05-30T07:23:34Z",
			want:  time.Date(2023, 5, 30, 7, 23, 34, 0, time.UTC),
		},
		{
			name:  "rfc3339 with offset normalizes to utc",
			input: "2023-05-30T09:23:34+02:00",
			want:  time.Date(2023, 5, 30, 7, 23, 34, 0, time.UTC),
		},
		{
			name:  "space separated datetime",
			input: "2023-05-30 07:23:34",
			want:  time.Date(2023, 5, 30, 7, 23, 34, 0, time.UTC),
		},
		{
			name:  "bare date",
			input: "2023-05-30",
			want:  time.Date(2023, 5, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "not-a-date",
			wantErr: true,
		},
		{
			name:    "numeric only",
			input:   "1685431414389418",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	want := time.Date(2023, 5, 30, 7, 23, 34, 389418000, time.UTC)
	us := ToMicros(want)
	if us != 1685431414389418 {
		t.Fatalf("ToMicros = %d, want 1685431414389418", us)
	}
	if got := FromMicros(us); !got.Equal(want) {
		t.Errorf("FromMicros(ToMicros(t)) = %v, want %v", got, want)
	}
}

func TestParseDateToMicros(t *testing.T) {
	us, err := ParseDateToMicros("2023-05-30T07:23:34.389418Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if us != 1685431414389418 {
		t.Errorf("got %d, want 1685431414389418", us)
	}

	if _, err := ParseDateToMicros("later"); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestRFC3339(t *testing.T) {
	got := RFC3339(1685431414389418)
	if got != "2023-05-30T07:23:34.389418Z" {
		t.Errorf("RFC3339 = %q, want %q", got, "2023-05-30T07:23:34.389418Z")
	}
}

func TestNowMicrosIsRecent(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second).UnixMicro()
	got := NowMicros()
	after := time.Now().UTC().Add(time.Second).UnixMicro()
	if got < before || got > after {
		t.Errorf("NowMicros = %d, outside [%d, %d]", got, before, after)
	}
}
