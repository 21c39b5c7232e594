package langdetect

import "testing"

func TestDetect(t *testing.T) {
	d := New([]string{"en", "el"})

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{"english", "please turn on the lights in the kitchen", "en", true},
		{"greek", "άναψε τα φώτα στην κουζίνα σε παρακαλώ", "el", true},
		{"too short", "ok", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name, ok := d.Detect(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if name == "" {
				t.Error("display name empty")
			}
		})
	}
}

func TestDetectSingleLanguageNeverFires(t *testing.T) {
	d := New([]string{"en"})
	if _, _, ok := d.Detect("this is clearly english text"); ok {
		t.Error("detection fired with a single-language set")
	}
}
