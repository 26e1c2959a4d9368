package argv

import "testing"

func TestLinkerFlagTable(t *testing.T) {
	longs := []struct {
		flag string
		want Arity
	}{
		{"entry", AritySpace},
		{"export", ArityEqual},
		{"export-memory", ArityOptional},
		{"build-id", ArityOptional},
		{"gc-sections", ArityNone},
		{"no-entry", ArityNone},
		{"trace-symbol", ArityEqual},
		{"shared", ArityNone},
	}
	for _, tt := range longs {
		got, ok := lldLong[tt.flag]
		if !ok || got != tt.want {
			t.Errorf("lldLong[%q] = %v, %v, want %v", tt.flag, got, ok, tt.want)
		}
	}

	shorts := []struct {
		flag byte
		want Arity
	}{
		{'L', AritySpace},
		{'l', AritySpace},
		{'z', AritySpace},
		{'y', ArityEqual},
		{'s', ArityNone},
		{'t', ArityNone},
	}
	for _, tt := range shorts {
		got, ok := lldShort[tt.flag]
		if !ok || got != tt.want {
			t.Errorf("lldShort[%q] = %v, %v, want %v", tt.flag, got, ok, tt.want)
		}
	}

	for _, f := range lldFlags {
		if f.long == "" && f.short == 0 {
			t.Error("flag with neither long nor short name")
		}
	}
}
